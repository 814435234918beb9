package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/meshkv/internal/telemetry/logger/logtest"
)

func TestNewHandler_DefaultTimeout(t *testing.T) {
	h := NewHandler(0)
	if h.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", h.timeout, DefaultTimeout)
	}
}

func TestHandler_ShutdownReverseOrder(t *testing.T) {
	h := NewHandler(time.Second, WithLogger(logtest.New()))

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"overlay", "store", "http"} {
		name := name
		h.OnShutdown(name, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	want := "http,store,overlay"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}
	if err := h.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v, want nil", err)
	}
}

func TestHandler_ShutdownCombinesErrors(t *testing.T) {
	rec := logtest.New()
	h := NewHandler(time.Second, WithLogger(rec))

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := false
	h.OnShutdown("a", func(context.Context) error { return errA })
	h.OnShutdown("ok", func(context.Context) error { ran = true; return nil })
	h.OnShutdown("b", func(context.Context) error { return errB })

	err := h.Shutdown()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Shutdown() error = %v, want both hook errors", err)
	}
	if !ran {
		t.Error("hook after a failure did not run")
	}
	if n := rec.Count("error", "shutdown hook failed"); n != 2 {
		t.Errorf("logged %d hook failures, want 2", n)
	}
}

func TestHandler_HookSeesDeadline(t *testing.T) {
	h := NewHandler(50*time.Millisecond, WithLogger(logtest.New()))
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := h.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Shutdown() did not respect the timeout")
	}
}

func TestHandler_ContextTrigger(t *testing.T) {
	h := NewHandler(time.Second, WithLogger(logtest.New()))
	ctx, stop := h.Context(context.Background())
	defer stop()

	h.Trigger()
	h.Trigger()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by Trigger")
	}
}

func TestHandler_ContextSignal(t *testing.T) {
	h := NewHandler(time.Second, WithLogger(logtest.New()), WithSignals(syscall.SIGUSR1))
	ctx, stop := h.Context(context.Background())
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by signal")
	}
}

func TestHandler_ContextParentCancel(t *testing.T) {
	h := NewHandler(time.Second)
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := h.Context(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with parent")
	}
}
