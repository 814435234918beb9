// Package lifecycle drives a node from bootstrap to steady state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/yndnr/meshkv/internal/core/announce"
	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/core/gate"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

var errAlreadyStarted = errors.New("lifecycle: controller already started")

// ErrStartupCancelled is returned by Start when the context is cancelled or
// Stop is called before the node reaches Steady. It is a clean shutdown.
var ErrStartupCancelled = errors.New("lifecycle: startup cancelled")

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock shared by the gate, scheduler and monitor.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

// WithReplicationListener registers fn to receive the snapshot after each
// replication event, in addition to the controller's own logging.
func WithReplicationListener(fn func(domain.Snapshot)) Option {
	return func(ctl *Controller) { ctl.onReplicated = fn }
}

// Controller runs the node lifecycle:
//
//	Connecting -> GateWaiting -> Attaching -> Announcing -> Steady
//
// ending in Stopped on cancellation or Failed on a fatal error.
type Controller struct {
	cfg          Config
	overlay      Overlay
	opener       Opener
	clock        clock.Clock
	logger       logger.Logger
	metrics      *metric.Registry
	onReplicated func(domain.Snapshot)

	mu        sync.RWMutex
	state     State
	identity  domain.NodeIdentity
	store     Store
	address   domain.ContentAddress
	observers []func(Transition)

	job      *announce.Job
	monitor  *peerMonitor
	cancel   context.CancelFunc
	stopping bool

	started  atomic.Bool
	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// New validates cfg and creates an idle Controller.
func New(cfg Config, overlay Overlay, opener Opener, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:     cfg,
		overlay: overlay,
		opener:  opener,
		clock:   clock.New(),
		logger:  logger.Default(),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("mode", string(cfg.Mode))
	return c, nil
}

// Run starts the node, blocks until ctx is cancelled or Stop is called,
// then stops it. Cancellation before Steady is a clean shutdown and
// returns nil.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		if errors.Is(err, ErrStartupCancelled) {
			return c.Stop()
		}
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.stopped:
	}
	return c.Stop()
}

// Start runs the startup sequence and returns once the node is steady.
// Periodic jobs keep running until ctx is cancelled or Stop is called.
// Stop interrupts a Start in progress; Start then returns an error
// matching ErrStartupCancelled.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		cancel()
		return ErrStartupCancelled
	}
	c.cancel = cancel
	c.mu.Unlock()

	steps := []func(context.Context) error{
		c.connect,
		c.awaitPeers,
		c.attach,
		c.announce,
		c.steady,
	}
	for _, step := range steps {
		err := step(ctx)
		if err == nil && c.isStopping() {
			err = ErrStartupCancelled
		}
		if err == nil {
			continue
		}
		interrupted := c.interrupted(ctx, err)
		cancel()
		if interrupted {
			c.logger.Info("startup cancelled", "state", c.State().String())
			if !errors.Is(err, ErrStartupCancelled) {
				err = fmt.Errorf("%w: %w", ErrStartupCancelled, err)
			}
			return err
		}
		c.fail(err)
		return err
	}
	return nil
}

// interrupted reports whether err came from cancellation rather than a
// genuine failure. A load timeout is a failure: its deadline is not ctx's.
func (c *Controller) interrupted(ctx context.Context, err error) bool {
	switch {
	case c.isStopping():
		return true
	case errors.Is(err, ErrStartupCancelled), errors.Is(err, domain.ErrGateCancelled):
		return true
	default:
		return ctx.Err() != nil && errors.Is(err, ctx.Err())
	}
}

func (c *Controller) isStopping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopping
}

func (c *Controller) connect(ctx context.Context) error {
	c.transition(StateConnecting)

	id := c.overlay.Identity()
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
	c.logger.Info("node identity", "node_id", id.ID, "addrs", id.Addrs)

	if c.cfg.Mode != domain.ModeJoin {
		return nil
	}
	for _, peer := range c.cfg.KnownPeers {
		if err := c.overlay.Connect(ctx, peer); err != nil {
			c.logger.Warn("connect to known peer failed",
				"peer", peer,
				"error", domain.ErrConnectFailed.WithDetails(peer).WithCause(err),
			)
			continue
		}
		c.logger.Info("connected to known peer", "peer", peer)
	}
	return nil
}

func (c *Controller) awaitPeers(ctx context.Context) error {
	c.transition(StateGateWaiting)

	if !c.cfg.Mode.WaitsForPeers() {
		c.logger.Info("peer gate", "skipped", true)
		return nil
	}
	g := &gate.Gate{
		Peers:        c.overlay,
		MinPeers:     c.cfg.MinPeers,
		PollInterval: c.cfg.GatePollInterval,
		Timeout:      c.cfg.GateTimeout,
		Clock:        c.clock,
		Logger:       c.logger,
		Metrics:      c.metrics,
	}
	return g.Await(ctx)
}

func (c *Controller) attach(ctx context.Context) error {
	c.transition(StateAttaching)

	var (
		st  Store
		err error
	)
	if c.cfg.Mode == domain.ModeCreate {
		st, err = c.opener.Create(ctx, c.cfg.StoreName, c.cfg.Policy)
	} else {
		st, err = c.opener.Open(ctx, c.cfg.StoreAddress, c.cfg.Policy)
	}
	if err != nil {
		return domain.ErrStoreOpen.WithCause(err)
	}

	loadCtx := ctx
	if c.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = c.clock.WithTimeout(ctx, c.cfg.LoadTimeout)
		defer cancel()
	}
	if err := st.Load(loadCtx); err != nil {
		return multierr.Append(domain.ErrStoreLoad.WithCause(err), st.Close())
	}

	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return multierr.Append(ErrStartupCancelled, st.Close())
	}
	c.store = st
	c.mu.Unlock()

	snap := st.All()
	c.metrics.SetStoreKeys(len(snap))
	c.logger.Info("store attached", "store_address", st.Address(), "keys", len(snap), "snapshot", snap)
	return nil
}

func (c *Controller) announce(ctx context.Context) error {
	c.transition(StateAnnouncing)

	st := c.attached()
	addr := st.ContentAddress()
	c.mu.Lock()
	c.address = addr
	c.mu.Unlock()
	c.logger.Info("content address", "content_address", addr.String(), "store_address", st.Address())

	sched := announce.New(c.overlay,
		announce.WithClock(c.clock),
		announce.WithLogger(c.logger),
		announce.WithMetrics(c.metrics),
		announce.WithAttemptTimeout(c.cfg.AnnounceAttemptTimeout),
	)
	if err := sched.Announce(ctx, addr); err == nil {
		c.logger.Info("content address announced", "content_address", addr.String())
	}

	job := sched.Start(ctx, addr, c.cfg.AnnouncePeriod)
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		job.Stop()
		return ErrStartupCancelled
	}
	c.job = job
	c.mu.Unlock()
	return nil
}

func (c *Controller) steady(ctx context.Context) error {
	st := c.attached()
	st.OnReplicated(c.handleReplicated)

	monitor := startPeerMonitor(ctx, c.overlay, c.cfg.PeerReportInterval, c.clock, c.logger, c.metrics)
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		monitor.stop()
		return ErrStartupCancelled
	}
	c.monitor = monitor
	c.mu.Unlock()

	c.transition(StateSteady)

	if c.cfg.Mode == domain.ModeCreate && len(c.cfg.Seed) > 0 {
		keys := make([]string, 0, len(c.cfg.Seed))
		for k := range c.cfg.Seed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := st.Put(ctx, k, c.cfg.Seed[k]); err != nil {
				c.logger.Warn("seed write failed", "key", k, "error", err)
			}
		}
		snap := st.All()
		c.metrics.SetStoreKeys(len(snap))
		c.logger.Info("current data", "snapshot", snap)
	}
	return nil
}

func (c *Controller) handleReplicated(snap domain.Snapshot) {
	c.metrics.IncReplicated()
	c.metrics.SetStoreKeys(len(snap))
	c.logger.Info("replicated", "keys", len(snap), "snapshot", snap)
	if c.onReplicated != nil {
		c.onReplicated(snap.Clone())
	}
}

// Stop halts the periodic jobs, closes the store and moves to Stopped.
// A Start still in progress is cancelled and publishes nothing further.
// It is safe to call more than once; later calls return the first result.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		cancel, job, monitor, st := c.cancel, c.job, c.monitor, c.store
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if job != nil {
			job.Stop()
		}
		if monitor != nil {
			monitor.stop()
		}
		if st != nil {
			if err := st.Close(); err != nil {
				c.stopErr = domain.ErrStoreWrite.WithDetails("close").WithCause(err)
			}
		}
		c.transition(StateStopped)
		close(c.stopped)
	})
	return c.stopErr
}

func (c *Controller) fail(err error) {
	from := c.State()
	c.transition(StateFailed)
	c.logger.Error("node failed", "state", from.String(), "error", err)
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	if from.Terminal() || to <= from {
		c.mu.Unlock()
		return
	}
	c.state = to
	observers := append([]func(Transition){}, c.observers...)
	c.mu.Unlock()

	c.metrics.SetState(int(to))
	c.logger.Info("state transition", "from", from.String(), "to", to.String())
	for _, fn := range observers {
		fn(Transition{From: from, To: to})
	}
}

func (c *Controller) attached() Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// OnTransition registers fn to observe every state change.
// fn runs synchronously on the goroutine making the transition.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Identity returns the node identity recorded during Connecting.
func (c *Controller) Identity() domain.NodeIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// ContentAddress returns the announced address, or ErrNotAttached before
// the Announcing state.
func (c *Controller) ContentAddress() (domain.ContentAddress, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.address == "" {
		return "", domain.ErrNotAttached
	}
	return c.address, nil
}

// Store returns the attached store, or ErrNotAttached before attachment.
func (c *Controller) Store() (Store, error) {
	st := c.attached()
	if st == nil {
		return nil, domain.ErrNotAttached
	}
	return st, nil
}

// Peers returns the count seen by the most recent peer report.
func (c *Controller) Peers() int {
	c.mu.RLock()
	m := c.monitor
	c.mu.RUnlock()
	if m == nil {
		return 0
	}
	return m.Last()
}

// NodeID implements metric.InfoSource.
func (c *Controller) NodeID() string { return c.Identity().ID }

// Mode implements metric.InfoSource.
func (c *Controller) Mode() string { return string(c.cfg.Mode) }

// StoreAddress implements metric.InfoSource.
func (c *Controller) StoreAddress() string {
	if st := c.attached(); st != nil {
		return st.Address()
	}
	return ""
}
