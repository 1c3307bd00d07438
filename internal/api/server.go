package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blossom-os/softwarehub/internal/catalog"
	"github.com/blossom-os/softwarehub/internal/progress"
	"github.com/blossom-os/softwarehub/internal/system"
)

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	catalog    *catalog.Catalog
	hub        *progress.Hub
	monitor    *system.Monitor
	origins    []string
	logger     *slog.Logger
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
	// AllowedOrigins for CORS; defaults to the local frontend dev servers
	AllowedOrigins []string
}

// NewServer creates a new HTTP server instance
func NewServer(c *catalog.Catalog, hub *progress.Hub, monitor *system.Monitor, cfg ServerConfig, logger *slog.Logger) *Server {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:1420"}
	}

	s := &Server{
		router:  chi.NewRouter(),
		catalog: c,
		hub:     hub,
		monitor: monitor,
		origins: origins,
		logger:  logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	// Progress streams end when shutdown begins
	baseCtx, cancel := context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	s.httpServer.RegisterOnShutdown(cancel)

	return s
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and waits for background
// collection refreshes to settle, giving up when ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.catalog.Wait(ctx); err != nil {
		s.logger.Warn("shutdown left background refreshes running", "error", err)
		return err
	}
	return nil
}
