// Package server is the modloader development server. It plays the router:
// /navigate/{route...} resolves a route through the navigation gate and
// renders the loaded module, while the /api endpoints expose the module
// table, loader metrics and preload progress, and /ws streams load events.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/app"
	"github.com/conneroisu/modloader/internal/config"
	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/renderer"
	"github.com/conneroisu/modloader/internal/websocket"
)

// Server serves an assembled App over HTTP
type Server struct {
	app      *app.App
	config   config.ServerConfig
	renderer *renderer.PageRenderer
	hub      *websocket.EventHub
	logger   logging.Logger

	httpServer   *http.Server
	listenAddr   string
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
	startedAt    time.Time
}

// New creates a server for a. The event hub subscribes to the app's bus
// immediately.
func New(a *app.App, logger logging.Logger) *Server {
	logger = logging.OrNop(logger)
	return &Server{
		app:       a,
		config:    a.Config.Server,
		renderer:  renderer.NewPageRenderer("modloader", logger),
		hub:       websocket.NewEventHub(a.Bus, a.Config.Server.AllowedOrigins, logger),
		logger:    logger.WithComponent("server"),
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /navigate/{route...}", s.handleNavigate)
	mux.HandleFunc("GET /api/modules", s.handleModules)
	mux.HandleFunc("GET /api/modules/{key}", s.handleModule)
	mux.HandleFunc("POST /api/modules/{key}/load", s.handleModuleLoad)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/preload", s.handlePreload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /ws", s.hub)

	return s.addMiddleware(mux)
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listenAddr = listener.Addr().String()
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Server listening", "addr", s.listenAddr)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Addr returns the address the server is listening on, once started
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.listenAddr
}

// Shutdown closes WebSocket clients first, then stops accepting requests and
// waits for in-flight ones. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if err := s.hub.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, err, "WebSocket hub did not drain")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
