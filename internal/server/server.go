// Package server exposes the import pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blaug210/budget-app/internal/handlers"
	"github.com/blaug210/budget-app/internal/middleware"
	"github.com/blaug210/budget-app/internal/streaming"
)

const shutdownTimeout = 10 * time.Second

// Store is everything the HTTP API reads from the budget database
type Store interface {
	handlers.BudgetReader
}

// Config holds the HTTP settings
type Config struct {
	// AllowedOrigin is sent as Access-Control-Allow-Origin; empty allows any origin
	AllowedOrigin string
	// MaxUploadBytes bounds uploaded statements; zero uses handlers.DefaultMaxUpload
	MaxUploadBytes int64
	// StaticDir, when set, is served at / for a bundled frontend
	StaticDir string
}

// Server represents the budget import API server
type Server struct {
	mux     *http.ServeMux
	cfg     Config
	api     *handlers.APIHandler
	imports *handlers.ImportHandlers
	auth    *middleware.AuthMiddleware
	logger  *log.Logger
}

// Option configures a Server
type Option func(*Server)

// WithAuth requires a verified Firebase ID token on every /api route
func WithAuth(verifier middleware.TokenVerifier) Option {
	return func(s *Server) {
		if verifier != nil {
			s.auth = middleware.NewAuthMiddleware(verifier)
		}
	}
}

// WithLogger sets the server logger
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(store Store, imp handlers.Importer, cfg Config, opts ...Option) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		cfg:    cfg,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}

	hub := streaming.NewStreamHub(streaming.WithLogger(s.logger))
	s.api = handlers.NewAPIHandler(store, s.logger)
	s.imports = handlers.NewImportHandlers(imp, store, hub,
		handlers.WithLogger(s.logger),
		handlers.WithMaxUpload(cfg.MaxUploadBytes))

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	s.handle("GET /api/budgets", s.api.GetBudgets)
	s.handle("GET /api/budgets/{id}", s.api.GetBudget)
	s.handle("GET /api/budgets/{id}/items", s.api.GetItems)
	s.handle("GET /api/budgets/{id}/imports", s.api.GetImports)

	s.handle("POST /api/budgets/{id}/preview", s.imports.Preview)
	s.handle("POST /api/budgets/{id}/imports", s.imports.StartImport)
	s.handle("GET /api/sessions/{id}", s.imports.GetSession)
	s.handle("GET /api/sessions/{id}/events", s.imports.StreamEvents)
	s.handle("POST /api/sessions/{id}/cancel", s.imports.CancelImport)

	if s.cfg.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.auth != nil {
		h = s.auth.RequireAuth(h)
	}
	s.mux.Handle(pattern, h)
}

// Handler returns the HTTP handler with CORS and request logging applied
func (s *Server) Handler() http.Handler {
	return middleware.Logging(s.logger)(middleware.CORS(s.cfg.AllowedOrigin)(s.mux))
}

// Run serves on addr until ctx is cancelled, then drains requests and stops running
// imports. ready, when non-nil, receives the bound address once listening.
func (s *Server) Run(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		s.imports.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	s.imports.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close stops running imports
func (s *Server) Close() error {
	s.imports.Close()
	return nil
}
