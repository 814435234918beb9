// Package announce publishes and refreshes the node's provider record.
package announce

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

const (
	// DefaultPeriod is the reference re-announce interval.
	DefaultPeriod = 60 * time.Second

	// DefaultAttemptTimeout bounds a single announce call.
	DefaultAttemptTimeout = 30 * time.Second
)

// Announcer publishes a provider record for a content address.
type Announcer interface {
	Announce(ctx context.Context, addr domain.ContentAddress) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for tickers and attempt deadlines.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithAttemptTimeout bounds each announce call. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.attemptTimeout = d }
}

// Scheduler runs announce attempts against an Announcer.
//
// Failures are never fatal: they are logged, counted and returned for
// observability, and a periodic Job keeps its fixed schedule regardless.
type Scheduler struct {
	announcer      Announcer
	clock          clock.Clock
	logger         logger.Logger
	metrics        *metric.Registry
	attemptTimeout time.Duration
}

// New creates a Scheduler.
func New(a Announcer, opts ...Option) *Scheduler {
	s := &Scheduler{
		announcer:      a,
		clock:          clock.New(),
		logger:         logger.Default(),
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Announce performs one announce attempt.
// A failure is returned as domain.ErrAnnounceFailed wrapping the cause.
func (s *Scheduler) Announce(ctx context.Context, addr domain.ContentAddress) error {
	actx := ctx
	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = s.clock.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}

	err := s.announcer.Announce(actx, addr)
	s.metrics.ObserveAnnounce(err)
	if err != nil {
		s.logger.Warn("announce failed",
			"op", "announce",
			"content_address", addr.String(),
			"error", err,
		)
		return domain.ErrAnnounceFailed.WithDetails(addr.String()).WithCause(err)
	}

	s.logger.Debug("announced", "content_address", addr.String())
	return nil
}

// Start arms a job that re-announces addr every period until ctx is
// cancelled or the job is stopped. The first attempt happens one period
// after Start; callers announce once themselves beforehand.
func (s *Scheduler) Start(ctx context.Context, addr domain.ContentAddress, period time.Duration) *Job {
	if period <= 0 {
		period = DefaultPeriod
	}
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		addr:   addr,
		period: period,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ticker := s.clock.Ticker(period)
	go j.run(ctx, s, ticker)

	s.logger.Info("re-announce armed", "content_address", addr.String(), "period", period.String())
	return j
}

// Outcome is the result of the most recent attempt.
type Outcome struct {
	At  time.Time
	Err error
}

// Job is a running periodic announce.
type Job struct {
	addr   domain.ContentAddress
	period time.Duration
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	last     Outcome
	attempts int
}

func (j *Job) run(ctx context.Context, s *Scheduler, ticker *clock.Ticker) {
	defer close(j.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Announce(ctx, j.addr)
			j.mu.Lock()
			j.last = Outcome{At: s.clock.Now(), Err: err}
			j.attempts++
			j.mu.Unlock()
		}
	}
}

// Address returns the content address this job refreshes.
func (j *Job) Address() domain.ContentAddress { return j.addr }

// Period returns the re-announce interval.
func (j *Job) Period() time.Duration { return j.period }

// LastOutcome returns the most recent attempt. The zero Outcome means no
// attempt has run yet.
func (j *Job) LastOutcome() Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Attempts returns how many periodic attempts have completed.
func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

// Stop cancels the job and waits for an in-flight attempt to finish.
func (j *Job) Stop() {
	j.cancel()
	<-j.done
}

// Done is closed once the job has exited.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
