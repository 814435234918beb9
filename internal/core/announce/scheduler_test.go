package announce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/telemetry/logger/logtest"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

const testAddr = domain.ContentAddress("bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku")

type fakeAnnouncer struct {
	mu    sync.Mutex
	err   error
	calls []domain.ContentAddress
	block bool
}

func (f *fakeAnnouncer) Announce(ctx context.Context, addr domain.ContentAddress) error {
	f.mu.Lock()
	f.calls = append(f.calls, addr)
	err, block := f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeAnnouncer) Calls() []domain.ContentAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ContentAddress(nil), f.calls...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_AnnounceSuccess(t *testing.T) {
	a := &fakeAnnouncer{}
	rec := logtest.New()
	reg := metric.NewRegistry()
	s := New(a, WithLogger(rec), WithMetrics(reg))

	if err := s.Announce(context.Background(), testAddr); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	if rec.Count("warn", "") != 0 {
		t.Errorf("unexpected warnings: %v", rec.Entries())
	}
	if got := testutil.ToFloat64(reg.AnnounceTotal.WithLabelValues(metric.ResultSuccess)); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
}

func TestScheduler_AnnounceFailureIsWarning(t *testing.T) {
	cause := domain.ErrNoRoutingPeers
	a := &fakeAnnouncer{err: cause}
	rec := logtest.New()
	s := New(a, WithLogger(rec))

	err := s.Announce(context.Background(), testAddr)
	if !errors.Is(err, domain.ErrAnnounceFailed) {
		t.Fatalf("error = %v, want ErrAnnounceFailed", err)
	}
	if !errors.Is(err, domain.ErrNoRoutingPeers) {
		t.Errorf("error = %v, want wrapped ErrNoRoutingPeers", err)
	}
	if domain.IsFatal(err) {
		t.Error("announce failure must not be fatal")
	}

	entries := rec.Entries()
	if len(entries) != 1 || entries[0].Level != "warn" {
		t.Fatalf("entries = %v, want one warning", entries)
	}
	for key, want := range map[string]any{"op": "announce", "content_address": testAddr.String()} {
		if got, _ := entries[0].Attr(key); got != want {
			t.Errorf("attr %s = %v, want %v", key, got, want)
		}
	}
	if got, _ := entries[0].Attr("error"); got != cause {
		t.Errorf("attr error = %v, want %v", got, cause)
	}
}

func TestScheduler_AttemptTimeout(t *testing.T) {
	a := &fakeAnnouncer{block: true}
	s := New(a, WithLogger(logtest.New()), WithAttemptTimeout(20*time.Millisecond))

	err := s.Announce(context.Background(), testAddr)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
}

func TestJob_KeepsFixedScheduleThroughFailures(t *testing.T) {
	mock := clock.NewMock()
	a := &fakeAnnouncer{err: errors.New("routing table empty")}
	rec := logtest.New()
	s := New(a, WithClock(mock), WithLogger(rec), WithAttemptTimeout(0))

	job := s.Start(context.Background(), testAddr, time.Minute)
	defer job.Stop()

	for i := 1; i <= 3; i++ {
		mock.Add(time.Minute)
		want := i
		waitFor(t, "announce attempt", func() bool { return job.Attempts() == want })
	}

	out := job.LastOutcome()
	if !errors.Is(out.Err, domain.ErrAnnounceFailed) {
		t.Errorf("LastOutcome().Err = %v, want ErrAnnounceFailed", out.Err)
	}
	if !out.At.Equal(mock.Now()) {
		t.Errorf("LastOutcome().At = %v, want %v", out.At, mock.Now())
	}
	if rec.Count("warn", "announce failed") != 3 {
		t.Errorf("warnings = %d, want 3", rec.Count("warn", "announce failed"))
	}

	// Recovery on the next tick, same cadence.
	a.mu.Lock()
	a.err = nil
	a.mu.Unlock()
	mock.Add(time.Minute)
	waitFor(t, "recovered attempt", func() bool { return job.Attempts() == 4 })
	if err := job.LastOutcome().Err; err != nil {
		t.Errorf("LastOutcome().Err = %v after recovery", err)
	}
	if got := rec.Count("warn", "announce failed"); got != 3 {
		t.Errorf("warnings after recovery = %d, want 3", got)
	}

	for _, addr := range a.Calls() {
		if addr != testAddr {
			t.Errorf("announced %q, want %q", addr, testAddr)
		}
	}
}

func TestJob_StopAndCancel(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		mock := clock.NewMock()
		a := &fakeAnnouncer{}
		job := New(a, WithClock(mock), WithLogger(logtest.New())).Start(context.Background(), testAddr, time.Second)

		job.Stop()
		select {
		case <-job.Done():
		default:
			t.Fatal("Done() not closed after Stop()")
		}

		mock.Add(5 * time.Second)
		if n := len(a.Calls()); n != 0 {
			t.Errorf("calls after stop = %d, want 0", n)
		}
	})

	t.Run("context", func(t *testing.T) {
		mock := clock.NewMock()
		ctx, cancel := context.WithCancel(context.Background())
		job := New(&fakeAnnouncer{}, WithClock(mock), WithLogger(logtest.New())).Start(ctx, testAddr, time.Second)

		cancel()
		select {
		case <-job.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("job did not exit on context cancel")
		}
	})
}

func TestJob_DefaultPeriod(t *testing.T) {
	job := New(&fakeAnnouncer{}, WithClock(clock.NewMock()), WithLogger(logtest.New())).
		Start(context.Background(), testAddr, 0)
	defer job.Stop()

	if job.Period() != DefaultPeriod {
		t.Errorf("Period() = %v, want %v", job.Period(), DefaultPeriod)
	}
	if job.Address() != testAddr {
		t.Errorf("Address() = %v", job.Address())
	}
}
