package registry

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mnohosten/paygate/pkg/httpkit"
)

// Service is the registry's HTTP surface: register, deregister, lookup, list.
// Liveness of a registered address is not tracked here — callers infer it via
// Ping/timeout against the address itself.
type Service struct {
	registry *Registry
	router   *chi.Mux
}

// NewService wires routes against registry.
func NewService(registry *Registry) *Service {
	s := &Service{registry: registry, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(httpkit.RequestSizeLimit(1 << 20))

	s.router.Get("/ping", httpkit.JSONContentType(s.handlePing))
	s.router.Post("/register", httpkit.JSONContentType(s.handleRegister))
	s.router.Delete("/register/{name}", httpkit.JSONContentType(s.handleDeregister))
	s.router.Get("/lookup/{name}", httpkit.JSONContentType(s.handleLookup))
	s.router.Get("/list", httpkit.JSONContentType(s.handleList))

	return s
}

// Router returns the underlying chi.Mux for embedding or testing.
func (s *Service) Router() *chi.Mux { return s.router }

func (s *Service) handlePing(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteSuccess(w, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Name == "" || req.Address == "" {
		httpkit.WriteError(w, http.StatusBadRequest, "bad_request", "name and address are required")
		return
	}
	entry := s.registry.Register(req.Name, req.Address)
	httpkit.WriteSuccess(w, entry)
}

func (s *Service) handleDeregister(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.registry.Deregister(name) {
		httpkit.WriteError(w, http.StatusNotFound, "unknown_entry", "no such entry: "+name)
		return
	}
	httpkit.WriteSuccess(w, map[string]string{"status": "deregistered"})
}

func (s *Service) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entry, ok := s.registry.Lookup(name)
	if !ok {
		httpkit.WriteError(w, http.StatusNotFound, "unknown_entry", "no such entry: "+name)
		return
	}
	httpkit.WriteSuccess(w, entry)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteSuccess(w, s.registry.List())
}
