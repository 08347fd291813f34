package bank

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mnohosten/paygate/pkg/httpkit"
)

// Service is the HTTP surface for a bank participant, one chi route per operation.
type Service struct {
	ledger *Ledger
	router *chi.Mux
}

// NewService wires routes for ledger.
func NewService(ledger *Ledger) *Service {
	s := &Service{ledger: ledger, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(httpkit.RequestSizeLimit(1 << 20))

	s.router.Post("/authenticate", httpkit.JSONContentType(s.handleAuthenticate))
	s.router.Post("/prepare/debit", httpkit.JSONContentType(s.handlePrepareDebit))
	s.router.Post("/prepare/credit", httpkit.JSONContentType(s.handlePrepareCredit))
	s.router.Post("/commit/debit", httpkit.JSONContentType(s.handleCommitDebit))
	s.router.Post("/commit/credit", httpkit.JSONContentType(s.handleCommitCredit))
	s.router.Post("/abort/debit", httpkit.JSONContentType(s.handleAbortDebit))
	s.router.Post("/abort/credit", httpkit.JSONContentType(s.handleAbortCredit))
	s.router.Get("/balance/{username}", httpkit.JSONContentType(s.handleBalance))
	s.router.Get("/history/{username}", httpkit.JSONContentType(s.handleHistory))

	if gqlHandler, err := NewGraphQLHandler(ledger); err == nil {
		s.router.Post("/graphql", gqlHandler.ServeHTTP)
	}

	return s
}

// Router returns the underlying chi.Mux for embedding or testing.
func (s *Service) Router() *chi.Mux { return s.router }

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Service) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := s.ledger.Authenticate(req.Username, req.Password); err != nil {
		switch err {
		case ErrUnknownUser:
			httpkit.WriteError(w, http.StatusNotFound, "unknown_user", err.Error())
		case ErrBadPassword:
			httpkit.WriteError(w, http.StatusUnauthorized, "auth_failed", err.Error())
		default:
			httpkit.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}
	httpkit.WriteSuccess(w, map[string]bool{"authenticated": true})
}

type prepareRequest struct {
	TxID     string `json:"txid"`
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
}

func (s *Service) handlePrepareDebit(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err := s.ledger.PrepareDebit(req.Username, req.TxID, req.Amount)
	writePrepareResult(w, err)
}

func (s *Service) handlePrepareCredit(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err := s.ledger.PrepareCredit(req.Username, req.TxID, req.Amount)
	writePrepareResult(w, err)
}

func writePrepareResult(w http.ResponseWriter, err error) {
	if err == nil {
		httpkit.WriteSuccess(w, map[string]string{"status": "prepared"})
		return
	}

	if dup, ok := err.(*DuplicateTxIDError); ok {
		httpkit.WriteError(w, http.StatusConflict, "duplicate_txid", dup.State)
		return
	}

	switch err {
	case ErrUnknownUser:
		httpkit.WriteError(w, http.StatusNotFound, "unknown_user", err.Error())
	case ErrInsufficientFunds:
		httpkit.WriteError(w, http.StatusConflict, "insufficient_funds", err.Error())
	case ErrConflictingHold:
		httpkit.WriteError(w, http.StatusConflict, "conflicting_hold", err.Error())
	default:
		httpkit.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type commitAbortRequest struct {
	TxID             string `json:"txid"`
	Username         string `json:"username"`
	CounterpartyBank string `json:"counterparty_bank"`
	CounterpartyUser string `json:"counterparty_user"`
}

func (s *Service) handleCommitDebit(w http.ResponseWriter, r *http.Request) {
	var req commitAbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err := s.ledger.CommitDebit(req.Username, req.TxID, req.CounterpartyBank, req.CounterpartyUser)
	writeCommitResult(w, err)
}

func (s *Service) handleCommitCredit(w http.ResponseWriter, r *http.Request) {
	var req commitAbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err := s.ledger.CommitCredit(req.Username, req.TxID, req.CounterpartyBank, req.CounterpartyUser)
	writeCommitResult(w, err)
}

func writeCommitResult(w http.ResponseWriter, err error) {
	switch err {
	case nil:
		httpkit.WriteSuccess(w, map[string]string{"status": "ok"})
	case ErrUnknownUser:
		httpkit.WriteError(w, http.StatusNotFound, "unknown_user", err.Error())
	case ErrUnknownTxID:
		httpkit.WriteError(w, http.StatusConflict, "unknown_txid", err.Error())
	case ErrNotPrepared:
		httpkit.WriteError(w, http.StatusConflict, "not_prepared", err.Error())
	default:
		httpkit.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Service) handleAbortDebit(w http.ResponseWriter, r *http.Request) {
	var req commitAbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	_ = s.ledger.AbortDebit(req.Username, req.TxID)
	httpkit.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Service) handleAbortCredit(w http.ResponseWriter, r *http.Request) {
	var req commitAbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	_ = s.ledger.AbortCredit(req.Username, req.TxID)
	httpkit.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Service) handleBalance(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	balance, err := s.ledger.Balance(username)
	if err != nil {
		httpkit.WriteError(w, http.StatusNotFound, "unknown_user", err.Error())
		return
	}
	httpkit.WriteSuccess(w, map[string]int64{"balance": balance})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	history, err := s.ledger.History(username)
	if err != nil {
		httpkit.WriteError(w, http.StatusNotFound, "unknown_user", err.Error())
		return
	}
	httpkit.WriteSuccess(w, history)
}
