package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/clibridge/internal/auth"
	"github.com/mattjoyce/clibridge/internal/history"
	"github.com/mattjoyce/clibridge/internal/invoke"
	"github.com/mattjoyce/clibridge/internal/response"
)

// Invoker runs operations by name. *invoke.Invoker implements it.
type Invoker interface {
	Table() *invoke.Table
	Run(ctx context.Context, name string, in invoke.Input) (response.CliResponse, error)
	Call(ctx context.Context, name string, in invoke.Input) (string, error)
}

// HistoryReader reads recorded invocations. *history.Store implements it.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*history.Entry, error)
	Recent(ctx context.Context, limit int) ([]*history.Entry, error)
}

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Config holds API server configuration
type Config struct {
	Listen string
	// Title names the wrapped program in /healthz and /openapi.json.
	Title string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens       []auth.TokenConfig
	MaxBodyBytes int64
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	invoker   Invoker
	history   HistoryReader
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. hist may be nil when history is
// disabled; the invocation endpoints then answer 404.
func New(config Config, inv Invoker, hist HistoryReader, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		invoker:   inv,
		history:   hist,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // invocations run inside the request
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	authn := &auth.Authenticator{
		APIKey:  s.config.APIKey,
		Tokens:  s.config.Tokens,
		OnError: s.writeError,
	}
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		r.With(authn.Require(auth.ScopeOpsRead)).Get("/operations", s.handleListOperations)
		r.With(authn.Require(auth.ScopeOpsRead)).Get("/openapi.json", s.handleOpenAPI)
		r.With(authn.Require(auth.ScopeInvoke)).Post("/invoke/*", s.handleInvoke)
		r.With(authn.Require(auth.ScopeInvoke)).Post("/call/*", s.handleCall)
		r.With(authn.Require(auth.ScopeHistory)).Get("/invocations", s.handleListInvocations)
		r.With(authn.Require(auth.ScopeHistory)).Get("/invocations/{id}", s.handleGetInvocation)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
