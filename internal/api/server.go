// Package api is the HTTP task-submission layer: it accepts dispatch
// requests, records them, hands them to the dispatcher and supervises the
// resulting processes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mattjoyce/agentgw/internal/actions"
	"github.com/mattjoyce/agentgw/internal/approvals"
	"github.com/mattjoyce/agentgw/internal/dispatch"
	"github.com/mattjoyce/agentgw/internal/events"
	"github.com/mattjoyce/agentgw/internal/execctx"
	"github.com/mattjoyce/agentgw/internal/executor"
	"github.com/mattjoyce/agentgw/internal/profile"
)

// Dispatcher starts agent processes. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request, svc approvals.Service, ectx execctx.Context, workDir string) (*executor.SpawnedChild, error)
}

// ProfileSource exposes the profile snapshot. *profile.Registry implements it.
type ProfileSource interface {
	Snapshot() (*profile.Snapshot, error)
}

// ActionStore persists actions and processes. *actions.Store implements it.
type ActionStore interface {
	CreateAction(ctx context.Context, req dispatch.Request) (*actions.Action, error)
	GetAction(ctx context.Context, id uuid.UUID) (*actions.Action, error)
	StartProcess(ctx context.Context, p *actions.Process) error
	MarkRunning(ctx context.Context, id uuid.UUID, pid int) error
	MarkFailed(ctx context.Context, id uuid.UUID, exitCode *int, cause error) error
	MarkCompleted(ctx context.Context, id uuid.UUID, exitCode int) error
	GetProcess(ctx context.Context, id uuid.UUID) (*actions.Process, error)
	ListProcesses(ctx context.Context, actionID uuid.UUID) ([]*actions.Process, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token and APIKeyHash its bcrypt form. Either
	// one enables authentication.
	APIKey     string
	APIKeyHash string
	// WorkspaceDir is used when a request names no working_dir.
	WorkspaceDir string
}

func (c Config) authEnabled() bool {
	return c.APIKey != "" || c.APIKeyHash != ""
}

// Server represents the HTTP API server.
type Server struct {
	config     Config
	dispatcher Dispatcher
	profiles   ProfileSource
	store      ActionStore
	approvals  approvals.Service
	events     *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time

	// running counts supervised processes.
	running sync.WaitGroup
	active  sync.Map // process id -> *executor.SpawnedChild
}

// New creates a new API server instance. svc is the approval service shared
// by every dispatch the server makes.
func New(config Config, d Dispatcher, profiles ProfileSource, store ActionStore, svc approvals.Service, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:     config,
		dispatcher: d,
		profiles:   profiles,
		store:      store,
		approvals:  svc,
		events:     hub,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server and blocks until ctx is cancelled.
// Supervised agent processes keep running after shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.authEnabled())

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

// Wait blocks until every supervised process has exited and been recorded.
func (s *Server) Wait() {
	s.running.Wait()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.authEnabled() {
			r.Use(s.authMiddleware)
		}
		r.Get("/profiles", s.handleListProfiles)
		r.Post("/profiles/{executor}/{variant}/dispatch", s.handleProfileDispatch)
		r.Post("/dispatch", s.handleDispatch)
		r.Get("/actions/{actionID}", s.handleGetAction)
		r.Get("/processes/{processID}", s.handleGetProcess)
		r.Post("/processes/{processID}/kill", s.handleKillProcess)
		r.Get("/events", s.handleEvents)
		r.Get("/openapi.json", s.handleOpenAPI)
	})

	return r
}

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
