package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/calbuddy/internal/app"
)

// Server exposes live progress and run history over HTTP
type Server struct {
	app      *app.App
	router   *http.ServeMux
	server   *http.Server
	listener net.Listener
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         application.Config.Progress.ListenAddr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Listen binds the configured address so callers know the server is
// reachable before Serve is started in the background
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = listener

	s.app.Logger.Info().
		Str("address", listener.Addr().String()).
		Msg("Progress server listening")
	return nil
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Start serves until Shutdown. It calls Listen first when needed.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down progress server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("Progress server stopped")
	return nil
}
