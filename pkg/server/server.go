// Package server exposes the analysis core over local HTTP. Uploads,
// insights, chat, and cache management are session-scoped JSON
// endpoints behind the auth middleware; metrics and health stay open.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mizanhq/mizan/pkg/audit"
	"github.com/mizanhq/mizan/pkg/auth"
	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/orchestrator"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Orchestrator is the analytical core the transport fronts.
type Orchestrator interface {
	GenerateInsights(ctx context.Context, ws protocol.Workspace) (*orchestrator.Insights, error)
	ProcessChatQuery(ctx context.Context, ws protocol.Workspace, query string) (*orchestrator.ChatAnswer, error)
	InvalidateCache(sessionID string, docType protocol.DocumentType)
	CacheStatus(sessionID string) protocol.CacheStatus
}

// Ingester turns an uploaded file into an indexed workspace.
type Ingester interface {
	IngestFile(ctx context.Context, ws protocol.Workspace, filename string, r io.Reader) (int, error)
}

// Store is the slice of the semantic store the transport reads.
type Store interface {
	VerifyUpload(ctx context.Context, sessionID, uploadID string) (bool, error)
	Ping(ctx context.Context) error
	Backend() string
}

// Runtime reports on the local model runtime for health checks.
type Runtime interface {
	ModelName() string
	Ping(ctx context.Context) error
}

// Server is the HTTP surface. Bind defaults to loopback; the service
// is meant to stay on the owner's machine.
type Server struct {
	cfg      *config.ServerConfig
	orch     Orchestrator
	ingester Ingester
	store    Store

	verifier *auth.Verifier
	audit    *audit.Log
	obs      *observability.Manager
	runtime  Runtime

	server *http.Server
}

// Option configures optional collaborators.
type Option func(*Server)

// WithVerifier sets the session token verifier. Absent, the server
// runs with auth disabled and reads X-Session-ID.
func WithVerifier(v *auth.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithAudit sets the usage bookkeeping log.
func WithAudit(log *audit.Log) Option {
	return func(s *Server) { s.audit = log }
}

// WithObservability sets the tracing and metrics manager.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) { s.obs = obs }
}

// WithRuntime sets the model runtime probed by /healthz.
func WithRuntime(r Runtime) Option {
	return func(s *Server) { s.runtime = r }
}

// New wires the HTTP server. cfg may be nil; defaults apply.
func New(cfg *config.ServerConfig, orch Orchestrator, ingester Ingester, store Store, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("server requires an orchestrator")
	}
	if ingester == nil {
		return nil, fmt.Errorf("server requires an ingester")
	}
	if store == nil {
		return nil, fmt.Errorf("server requires a store")
	}
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	cfg.SetDefaults()

	s := &Server{
		cfg:      cfg,
		orch:     orch,
		ingester: ingester,
		store:    store,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.verifier == nil {
		s.verifier = &auth.Verifier{}
	}
	if s.obs == nil {
		s.obs = observability.NoopManager()
	}

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// routes assembles the chi router. Operational endpoints stay outside
// the auth group so probes and scrapes never need a session.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.obs.GetTracer("mizan.http"), s.obs.Metrics()))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.verifier.Middleware)

		r.Post("/v1/uploads", s.handleUpload)
		r.Get("/v1/uploads/{id}/verify", s.handleVerifyUpload)
		r.Post("/v1/insights", s.handleInsights)
		r.Post("/v1/chat", s.handleChat)
		r.Get("/v1/cache/status", s.handleCacheStatus)
		r.Delete("/v1/cache", s.handleClearCache)
	})

	return r
}

// Start serves until the context is done or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("HTTP server starting",
		"address", s.cfg.Address(),
		"auth", s.verifier.Enabled())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("HTTP server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

// Address returns the configured bind address.
func (s *Server) Address() string {
	return s.cfg.Address()
}

// Handler exposes the assembled routes for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
