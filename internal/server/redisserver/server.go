package redisserver

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// Config holds listener settings.
type Config struct {
	// Addr is the TCP listen address.
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration

	// RateLimit caps commands per second per connection. 0 disables it.
	RateLimit int

	// TLSConfig, if set, serves RESP over TLS.
	TLSConfig *tls.Config
}

// DefaultConfig returns loopback settings.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
		RateLimit:    1000,
	}
}

// Server accepts RESP connections.
type Server struct {
	cfg     Config
	handler *CommandHandler
	logger  logger.Logger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Server. Zero timeouts take the DefaultConfig values.
func New(cfg Config, handler *CommandHandler, log logger.Logger) *Server {
	def := DefaultConfig()
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  log.With("component", "redis"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ln); err != nil {
			s.logger.Error("redis server stopped", "error", err)
		}
	}()

	s.logger.Info("redis server listening", "address", ln.Addr().String(), "tls", s.cfg.TLSConfig != nil)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown closes the listener and every open connection, then waits for
// handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	err := s.ln.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		if !s.track(c, true) {
			_ = c.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(c, false)
			s.serveConn(c)
		}()
	}
}

// track adds or removes c from the open set. Adding fails once shut down.
func (s *Server) track(c net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, c)
		return true
	}
	if !s.running.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) serveConn(c net.Conn) {
	defer c.Close()

	remote := c.RemoteAddr().String()
	r := NewReader(c)
	w := NewWriter(c)

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateLimit)
	}

	reply := func() bool {
		_ = c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		return w.Flush() == nil
	}

	for {
		if err := c.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		if err := r.Peek(); err != nil {
			s.logReadError(remote, err)
			return
		}
		if err := c.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		args, err := r.ReadCommand()
		if err != nil {
			s.logReadError(remote, err)
			switch {
			case errors.Is(err, ErrLimitExceeded):
				w.Error("ERR protocol limit exceeded")
				reply()
			case errors.Is(err, ErrProtocol):
				w.Error("ERR " + err.Error())
				reply()
			}
			return
		}
		if len(args) == 0 {
			continue
		}

		if limiter != nil && !limiter.Allow() {
			w.Error("ERR rate limit exceeded")
			if !reply() {
				return
			}
			continue
		}

		quit := s.handler.Handle(context.Background(), w, args)
		if !reply() || quit {
			return
		}
	}
}

func (s *Server) logReadError(remote string, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Debug("connection timed out", "remote", remote)
	case errors.Is(err, ErrLimitExceeded):
		s.logger.Warn("protocol limit exceeded", "remote", remote, "error", err)
	default:
		s.logger.Debug("connection read error", "remote", remote, "error", err)
	}
}
