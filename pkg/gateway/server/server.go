// Package server assembles the gateway HTTP surface: the media-stream
// websocket, health and readiness probes, and Prometheus metrics.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearline-ai/clearline/pkg/gateway/config"
	"github.com/clearline-ai/clearline/pkg/gateway/handlers"
	"github.com/clearline-ai/clearline/pkg/gateway/lifecycle"
	"github.com/clearline-ai/clearline/pkg/gateway/mw"
	"github.com/clearline-ai/clearline/pkg/gateway/session"
	"github.com/clearline-ai/clearline/pkg/gateway/sessions"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *sessions.Registry
	life     *lifecycle.Lifecycle
}

func New(cfg config.Config, registry *sessions.Registry, sessionCfg session.Config, deps session.Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = sessions.NewRegistry()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		registry: registry,
		life:     &lifecycle.Lifecycle{},
	}
	s.routes(sessionCfg, deps)
	return s
}

func (s *Server) routes(sessionCfg session.Config, deps session.Deps) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Lifecycle: s.life, Registry: s.registry})
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.Handle("/stream", handlers.StreamHandler{
		Logger:        s.logger,
		Lifecycle:     s.life,
		Registry:      s.registry,
		SessionConfig: sessionCfg,
		SessionDeps:   deps,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness so the load balancer stops routing new
// calls here. Existing sessions keep running.
func (s *Server) SetDraining() {
	s.life.SetDraining(true)
}

func (s *Server) ActiveSessions() int {
	return s.registry.Count()
}

// CloseSessions tears down every active session through its own
// teardown path and returns how many were closed.
func (s *Server) CloseSessions() int {
	return s.registry.CloseAll()
}

// WaitSessions blocks until all sessions have unregistered or ctx
// expires; it reports whether the drain completed.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.registry.Wait(ctx)
}
