// Package gate blocks node startup until enough peers are connected.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

// DefaultPollInterval is the gate's reference polling cadence.
const DefaultPollInterval = time.Second

// PeerLister returns a fresh snapshot of connected peers.
type PeerLister interface {
	Peers(ctx context.Context) (domain.PeerSet, error)
}

// PeerListerFunc adapts a function to PeerLister.
type PeerListerFunc func(ctx context.Context) (domain.PeerSet, error)

// Peers implements PeerLister.
func (f PeerListerFunc) Peers(ctx context.Context) (domain.PeerSet, error) {
	return f(ctx)
}

// Gate polls a PeerLister on a fixed ticker until MinPeers is reached.
type Gate struct {
	Peers        PeerLister
	MinPeers     int
	PollInterval time.Duration

	// Timeout bounds the wait. Zero waits until the context is cancelled.
	Timeout time.Duration

	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *metric.Registry
}

// AwaitMinimumPeers waits with the default clock and logger and no timeout.
func AwaitMinimumPeers(ctx context.Context, peers PeerLister, minPeers int, pollInterval time.Duration) error {
	g := &Gate{Peers: peers, MinPeers: minPeers, PollInterval: pollInterval}
	return g.Await(ctx)
}

// Await blocks until a poll observes at least MinPeers peers.
//
// Resolution only happens on a tick, so even MinPeers <= 0 waits for the
// first poll. A failed poll counts as zero peers for that tick. Ticks that
// are missed while a poll is running are dropped, not queued.
func (g *Gate) Await(ctx context.Context) error {
	clk := g.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := g.Logger
	if log == nil {
		log = logger.Default()
	}
	interval := g.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if err := ctx.Err(); err != nil {
		return domain.ErrGateCancelled.WithCause(err)
	}

	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if g.Timeout > 0 {
		timer := clk.Timer(g.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	start := clk.Now()
	log.Info("waiting for peers", "required", g.MinPeers, "poll_interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			return domain.ErrGateCancelled.WithCause(ctx.Err())

		case <-deadline:
			return domain.ErrGateTimeout.WithDetails(
				fmt.Sprintf("required %d peers within %s", g.MinPeers, g.Timeout))

		case <-ticker.C:
			n := g.count(ctx, log)
			if n >= g.MinPeers {
				waited := clk.Since(start)
				g.Metrics.ObserveGateWait(waited.Seconds())
				log.Info("peer gate satisfied", "connected", n, "required", g.MinPeers,
					"waited", waited.String())
				return nil
			}
			log.Info("waiting for peers", "connected", n, "required", g.MinPeers)
		}
	}
}

func (g *Gate) count(ctx context.Context, log logger.Logger) int {
	set, err := g.Peers.Peers(ctx)
	if err != nil {
		log.Debug("peer poll failed", "error", err)
		return 0
	}
	return set.Count()
}
