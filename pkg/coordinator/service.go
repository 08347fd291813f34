package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mnohosten/paygate/pkg/httpkit"
	"github.com/mnohosten/paygate/pkg/token"
)

// Service is the coordinator's HTTP surface: Login, Transfer, Balance,
// History, Ping, plus an admin-only websocket event stream.
type Service struct {
	coord     *Coordinator
	directory *Directory
	issuer    *token.Issuer
	events    *EventBroadcaster
	tokenTTL  time.Duration
	router    *chi.Mux
}

// NewService wires routes for coord against directory and issuer.
func NewService(coord *Coordinator, directory *Directory, issuer *token.Issuer, events *EventBroadcaster, tokenTTL time.Duration) *Service {
	s := &Service{
		coord:     coord,
		directory: directory,
		issuer:    issuer,
		events:    events,
		tokenTTL:  tokenTTL,
		router:    chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(httpkit.RequestSizeLimit(1 << 20))

	s.router.Get("/ping", httpkit.JSONContentType(s.handlePing))
	s.router.Get("/stats", httpkit.JSONContentType(s.handleStats))
	s.router.Post("/login", httpkit.JSONContentType(s.handleLogin))

	s.router.Group(func(r chi.Router) {
		r.Use(requireAuth(issuer))
		r.Post("/transfer", httpkit.JSONContentType(s.handleTransfer))
		r.Get("/balance", httpkit.JSONContentType(s.handleBalance))
		r.Get("/history", httpkit.JSONContentType(s.handleHistory))
		if events != nil {
			r.Get("/admin/events", events.ServeWS)
		}
	})

	return s
}

// Router returns the underlying chi.Mux for embedding or testing.
func (s *Service) Router() *chi.Mux { return s.router }

func (s *Service) handlePing(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteSuccess(w, s.coord.Stats())
}

type loginRequest struct {
	Bank     string `json:"bank"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	bp, ok := s.directory.Lookup(req.Bank)
	if !ok {
		httpkit.WriteError(w, http.StatusNotFound, "unknown_bank", "no such bank: "+req.Bank)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := bp.Authenticate(ctx, req.Username, req.Password); err != nil {
		httpkit.WriteError(w, http.StatusUnauthorized, "auth_failed", "invalid credentials")
		return
	}

	subject := token.Subject{Bank: req.Bank, Username: req.Username}
	tok, expiresAt, err := s.issuer.Mint(subject, s.tokenTTL)
	if err != nil {
		httpkit.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	httpkit.WriteSuccess(w, loginResult{Token: tok, ExpiresAt: expiresAt})
}

type transferRequest struct {
	TxID    string `json:"txid"`
	DstBank string `json:"dst_bank"`
	DstUser string `json:"dst_user"`
	Amount  int64  `json:"amount"`
}

type transferResult struct {
	TxID        string `json:"txid"`
	Committed   bool   `json:"committed"`
	AbortReason string `json:"abort_reason,omitempty"`
}

func (s *Service) handleTransfer(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromContext(r)
	if !ok {
		httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing subject")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.TxID == "" {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", "txid is required")
		return
	}

	result, err := s.coord.Transfer(r.Context(), TransferRequest{
		TxID:    req.TxID,
		SrcBank: subject.Bank,
		SrcUser: subject.Username,
		DstBank: req.DstBank,
		DstUser: req.DstUser,
		Amount:  req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownBank):
			httpkit.WriteError(w, http.StatusNotFound, "unknown_bank", err.Error())
		case errors.Is(err, ErrDuplicateInFlight):
			httpkit.WriteError(w, http.StatusConflict, "duplicate_in_flight", err.Error())
		default:
			httpkit.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}

	httpkit.WriteSuccess(w, transferResult{
		TxID:        result.TxID,
		Committed:   result.Committed,
		AbortReason: result.AbortReason,
	})
}

func (s *Service) handleBalance(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromContext(r)
	if !ok {
		httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing subject")
		return
	}

	bp, ok := s.directory.Lookup(subject.Bank)
	if !ok {
		httpkit.WriteError(w, http.StatusNotFound, "unknown_bank", "no such bank: "+subject.Bank)
		return
	}

	balance, err := bp.Balance(r.Context(), subject.Username)
	if err != nil {
		httpkit.WriteError(w, http.StatusBadGateway, "bank_unavailable", err.Error())
		return
	}
	httpkit.WriteSuccess(w, map[string]int64{"balance": balance})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectFromContext(r)
	if !ok {
		httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing subject")
		return
	}

	bp, ok := s.directory.Lookup(subject.Bank)
	if !ok {
		httpkit.WriteError(w, http.StatusNotFound, "unknown_bank", "no such bank: "+subject.Bank)
		return
	}

	history, err := bp.History(r.Context(), subject.Username)
	if err != nil {
		httpkit.WriteError(w, http.StatusBadGateway, "bank_unavailable", err.Error())
		return
	}
	httpkit.WriteSuccess(w, history)
}
