package lifecycle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yndnr/meshkv/internal/core/gate"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

// DefaultPeerReportInterval is the reference peer-count report cadence.
const DefaultPeerReportInterval = 3 * time.Second

// peerMonitor reports the connected peer count on a fixed ticker.
// Every tick takes its own snapshot; nothing is shared with the gate.
type peerMonitor struct {
	peers   gate.PeerLister
	logger  logger.Logger
	metrics *metric.Registry

	last   atomic.Int64
	cancel context.CancelFunc
	done   chan struct{}
}

func startPeerMonitor(ctx context.Context, peers gate.PeerLister, interval time.Duration,
	clk clock.Clock, log logger.Logger, m *metric.Registry) *peerMonitor {

	if interval <= 0 {
		interval = DefaultPeerReportInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	pm := &peerMonitor{
		peers:   peers,
		logger:  log,
		metrics: m,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	ticker := clk.Ticker(interval)
	go func() {
		defer close(pm.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pm.report(ctx)
			}
		}
	}()
	return pm
}

func (pm *peerMonitor) report(ctx context.Context) {
	n := 0
	set, err := pm.peers.Peers(ctx)
	if err != nil {
		pm.logger.Debug("peer poll failed", "error", err)
	} else {
		n = set.Count()
	}
	pm.last.Store(int64(n))
	pm.metrics.SetPeers(n)
	pm.logger.Info("connected peers", "count", n)
}

// Last returns the count observed at the most recent tick.
func (pm *peerMonitor) Last() int {
	return int(pm.last.Load())
}

func (pm *peerMonitor) stop() {
	pm.cancel()
	<-pm.done
}
