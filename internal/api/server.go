package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/flowpbx/callrouter/internal/api/middleware"
	"github.com/flowpbx/callrouter/internal/config"
	"github.com/flowpbx/callrouter/internal/routing"
	"github.com/flowpbx/callrouter/internal/signature"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// CallRouter decides where an inbound call rings.
type CallRouter interface {
	Route(ctx context.Context, ev routing.InboundCallEvent) routing.Decision
	FallbackResponse() routing.Response
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router   *chi.Mux
	cfg      *config.Config
	calls    CallRouter
	verifier *signature.Verifier
	metrics  http.Handler
}

// NewServer creates the HTTP handler with all routes mounted. metrics may be
// nil, in which case /metrics is not served.
func NewServer(cfg *config.Config, calls CallRouter, verifier *signature.Verifier, metrics http.Handler) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		calls:    calls,
		verifier: verifier,
		metrics:  metrics,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all routes.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(nil))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	// The webhook answers every non-authentication failure, panics
	// included, with the fallback transfer.
	r.With(
		middleware.VerifySignature(s.verifier),
		middleware.Recoverer(http.HandlerFunc(s.handleFallback)),
	).Post(s.cfg.WebhookPath, s.handleRouteCall)

	slog.Info("api routes mounted", "webhook_path", s.cfg.WebhookPath)
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
