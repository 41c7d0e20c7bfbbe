// Package server constructs and starts the presence hub's HTTP service with
// helpers that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/presencehub/internal/presence"
)

// Server bundles the presence hub, the client gateway and the HTTP server
// that feeds them.
type Server struct {
	cfg        Config
	logger     *zap.Logger
	hub        *presence.Hub
	gateway    *Gateway
	origins    originPolicy
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New creates a Server from a sanitized copy of cfg. Call Start to run it.
func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Sanitize()

	gateway := NewGateway(logger.Named("gateway"))
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		hub:     presence.NewHub(gateway, logger),
		gateway: gateway,
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.httpServer = CreateServer(cfg.Port, s.Routes())
	return s
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Hub returns the presence hub driven by this server.
func (s *Server) Hub() *presence.Hub {
	return s.hub
}

// Gateway returns the client gateway.
func (s *Server) Gateway() *Gateway {
	return s.gateway
}

// StartHub starts the presence hub in its own goroutine. It must be called
// before connections are accepted.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.logger.Info("hub started and ready to manage connections")
}

// Start starts the hub and serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.StartHub()
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every client and stops the hub.
// The configured shutdown timeout bounds each stage.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	s.gateway.CloseAll()
	if err := s.gateway.Wait(s.cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown completed with errors", zap.Error(err))
		return err
	}
	s.logger.Info("shutdown completed")
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.origins.allows(r) {
		return true
	}

	s.logger.Warn("blocked websocket connection from disallowed origin", zap.String("origin", r.Header.Get("Origin")))
	return false
}
