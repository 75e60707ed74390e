package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/tessera/internal/auth"
	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/events"
	"github.com/mattjoyce/tessera/internal/processor"
	"github.com/mattjoyce/tessera/internal/toolbox"
)

// Runner is the controller surface driven over HTTP.
type Runner interface {
	Status() control.Status
	Start(ctx context.Context) error
	Reset() error
	RequestCancellation(code int)
	Continue()
	IsAtBreak() bool
	SetCycleTime(ms uint)
	CycleTimeMS() uint
}

// Wiring is the read-only view of the toolbox.
type Wiring interface {
	Processors() []string
	Processor(name string) (processor.Processor, bool)
	Connections() []toolbox.Connection
	RunQueue() [][]string
	Breakpoints() []string
	RunSingleThreaded() bool
	Fingerprint() string
}

// RunHistory reads the run journal.
type RunHistory interface {
	List(ctx context.Context, limit int) ([]control.Status, error)
	Get(ctx context.Context, id string) (control.Status, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the admin bearer token. With no key and no tokens the API
	// is open, which is only sensible on a loopback listener.
	APIKey string
	Tokens []config.APIToken
}

// Server is the run-control HTTP API.
type Server struct {
	config    Config
	runner    Runner
	wiring    Wiring
	history   RunHistory
	events    *events.Hub
	metrics   http.Handler
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	// runCtx parents runs started over HTTP so they outlive the request.
	runCtx context.Context
}

// New creates a server. history and metrics may be nil.
func New(cfg Config, runner Runner, wiring Wiring, history RunHistory, hub *events.Hub, metrics http.Handler, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    cfg,
		runner:    runner,
		wiring:    wiring,
		history:   history,
		events:    hub,
		metrics:   metrics,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
		runCtx:    context.Background(),
	}
}

// Start serves until ctx is cancelled. Runs started through the API are
// parented on ctx, so shutdown interrupts them.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.authEnabled())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(s.requireScopes(auth.ScopeRunRead))
			r.Get("/status", s.handleStatus)
			r.Get("/cycle-time", s.handleGetCycleTime)
			r.Get("/processors", s.handleProcessors)
			r.Get("/connections", s.handleConnections)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Get("/events", s.handleEvents)
			r.Get("/openapi.json", s.handleOpenAPI)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireScopes(auth.ScopeRunWrite))
			r.Post("/run", s.handleRun)
			r.Post("/cancel", s.handleCancel)
			r.Post("/continue", s.handleContinue)
			r.Put("/cycle-time", s.handlePutCycleTime)
		})
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
