package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// DefaultTimeout bounds all hooks together.
const DefaultTimeout = 15 * time.Second

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler turns SIGINT/SIGTERM into context cancellation and runs
// cleanup hooks in reverse registration order.
type Handler struct {
	timeout time.Duration
	logger  logger.Logger

	mu    sync.Mutex
	hooks []hook

	trigger     chan struct{}
	triggerOnce sync.Once
	done        chan struct{}
	signals     []os.Signal
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithSignals replaces the signals that trigger shutdown.
func WithSignals(sigs ...os.Signal) Option {
	return func(h *Handler) { h.signals = sigs }
}

// NewHandler creates a shutdown handler. A non-positive timeout uses
// DefaultTimeout.
func NewHandler(timeout time.Duration, opts ...Option) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	h := &Handler{
		timeout: timeout,
		logger:  logger.Default(),
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnShutdown registers a named hook.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Trigger starts shutdown as if a signal had arrived.
func (h *Handler) Trigger() {
	h.triggerOnce.Do(func() { close(h.trigger) })
}

// Context returns a child of parent that is cancelled on a signal or
// Trigger. The returned stop function releases the signal handler.
func (h *Handler) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.signals...)

	go func() {
		select {
		case sig := <-sigCh:
			h.logger.Info("shutdown signal received", "signal", sig.String())
			h.Trigger()
			cancel()
		case <-h.trigger:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// Shutdown runs every hook in reverse order within the timeout and
// returns the combined errors. It runs at most once.
func (h *Handler) Shutdown() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.Trigger()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.hooks = nil
	h.mu.Unlock()

	var err error
	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		start := time.Now()
		if herr := hk.fn(ctx); herr != nil {
			h.logger.Error("shutdown hook failed", "hook", hk.name, "error", herr)
			err = multierr.Append(err, fmt.Errorf("%s: %w", hk.name, herr))
			continue
		}
		h.logger.Debug("shutdown hook done", "hook", hk.name, "duration", time.Since(start))
	}

	close(h.done)
	return err
}

// Done is closed once Shutdown has finished.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
