// Package api provides HTTP API server implementation for the search core service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newsintel/searchcore/internal/aijob"
	"github.com/newsintel/searchcore/internal/api/middleware"
	"github.com/newsintel/searchcore/internal/callback"
	"github.com/newsintel/searchcore/internal/corpus"
	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/searchjob"
	"github.com/newsintel/searchcore/internal/sources"
	"github.com/newsintel/searchcore/internal/storage"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer    *http.Server
	logger        *slog.Logger
	config        *ServerConfig
	startTime     time.Time
	rateLimiter   middleware.RateLimiter
	conn          *storage.Connection
	searchJobs    storage.SearchJobStore
	aiJobs        storage.AiJobStore
	bus           *eventbus.Bus
	searchManager *searchjob.Manager
	orchestrator  *aijob.Orchestrator
	fanout        *sources.Fanout
	searcher      *corpus.Searcher
	callback      *callback.Processor
}

// Dependencies groups everything NewServer needs beyond pure
// configuration (ports, timeouts, CORS): the storage connection, stores,
// event bus, and job managers/orchestrator it wires into route handlers.
type Dependencies struct {
	RateLimiter   middleware.RateLimiter
	Conn          *storage.Connection
	SearchJobs    storage.SearchJobStore
	AiJobs        storage.AiJobStore
	Bus           *eventbus.Bus
	SearchManager *searchjob.Manager
	Orchestrator  *aijob.Orchestrator
	Fanout        *sources.Fanout
	Searcher      *corpus.Searcher
	Callback      *callback.Processor
}

// NewServer creates a new HTTP server instance with structured logging and middleware stack.
//
// Dependencies are injected explicitly rather than being part of ServerConfig,
// keeping pure configuration separate from the collaborators it wires.
func NewServer(cfg *ServerConfig, deps Dependencies) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if deps.SearchManager == nil || deps.Orchestrator == nil || deps.Bus == nil {
		logger.Error("core job/event dependencies are required - cannot start server")
		panic("searchcore: SearchManager, Orchestrator and Bus cannot be nil - this indicates a configuration error")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:        logger,
		config:        cfg,
		rateLimiter:   deps.RateLimiter,
		conn:          deps.Conn,
		searchJobs:    deps.SearchJobs,
		aiJobs:        deps.AiJobs,
		bus:           deps.Bus,
		searchManager: deps.SearchManager,
		orchestrator:  deps.Orchestrator,
		fanout:        deps.Fanout,
		searcher:      deps.Searcher,
		callback:      deps.Callback,
	}

	server.setupRoutes(mux)

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Apply middleware chain using functional options pattern.
	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. RateLimit - block job-creation requests before expensive fan-out
	//   4. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   5. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	server.httpServer = httpServer

	return server
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting search core API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.bus != nil {
		s.bus.Stop()
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
