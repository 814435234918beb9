package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// Server is the node's HTTP endpoint.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
	tlsConfig  *tls.Config

	mu       sync.Mutex
	listener net.Listener
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTLSConfig serves HTTPS with cfg.
func WithTLSConfig(cfg *tls.Config) ServerOption {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// New creates a server for addr. It does not listen until Start.
func New(addr string, handler http.Handler, log logger.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		logger: log.With("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "tls", s.tlsConfig != nil)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
