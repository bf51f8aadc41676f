package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poolwarden/poolwarden/internal/infra/shutdown"
)

// Server serves the health endpoints, the ops/status endpoints and the
// removal-request hook for the external drain mechanism.
type Server struct {
	logger     *slog.Logger
	appState   appstater
	healthReg  healthStats
	pools      poolViewer
	fleet      fleetViewer
	capacity   capacityViewer
	remover    remover
	port       string
	server     *http.Server
	ready      chan struct{}
	inShutdown atomic.Bool
}

// New creates a new HTTP server instance
func New(
	logger *slog.Logger,
	appState appstater,
	healthReg healthStats,
	pools poolViewer,
	fleet fleetViewer,
	capacity capacityViewer,
	remover remover,
	port string,
) *Server {
	if port == "" {
		port = defaultPort
	}

	return &Server{
		logger:    logger,
		appState:  appState,
		healthReg: healthReg,
		pools:     pools,
		fleet:     fleet,
		capacity:  capacity,
		remover:   remover,
		port:      port,
		ready:     make(chan struct{}),
	}
}

var _ shutdown.Shutdowner = (*Server)(nil)

// Name returns the name of the server component
func (s *Server) Name() string {
	return "http-server"
}

// Ping returns nil when the server is ready to serve.
func (s *Server) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		return nil
	default:
		return fmt.Errorf("http server is not ready")
	}
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "http server is shutting down, skipping start")

		return nil
	}

	router := chi.NewRouter()

	// Add middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Register health endpoints
	router.Get("/-/healthz", s.handleHealthz)
	router.Get("/-/readyz", s.handleReadyz)
	router.Get("/-/status", s.handleStatus)

	// Ops endpoints
	router.Get("/pools", s.handlePools)
	router.Get("/nodeclasses", s.handleNodeClasses)

	// Removal-request hook for the external drain/eviction mechanism.
	router.Post("/pools/{pool}/replicas/{replica}/removal", s.handleRemoval)

	addr := fmt.Sprintf(":%s", s.port)
	s.server = newHTTPServer(addr, router)

	go func() {
		s.logger.InfoContext(ctx, "starting http server", "port", s.port)

		listener, err := listen(ctx, addr)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to listen", "error", err)

			return
		}

		close(s.ready)

		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.ErrorContext(ctx, "http server error", "error", err)
		}
	}()

	return nil
}

// Ready returns a channel that is closed when the HTTP server is ready to serve requests
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return shutdownServer(ctx, s.logger, "http", &s.inShutdown, s.server)
}
