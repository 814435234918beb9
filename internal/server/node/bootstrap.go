package node

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/meshkv/internal/core/lifecycle"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

const maxConcurrentDials = 8

// dialBootstrap connects to every address concurrently and returns how
// many succeeded. Failures are logged and otherwise ignored.
func dialBootstrap(ctx context.Context, ov lifecycle.Overlay, addrs []string, log logger.Logger) int {
	if len(addrs) == 0 {
		return 0
	}

	var connected atomic.Int32
	var g errgroup.Group
	g.SetLimit(maxConcurrentDials)
	for _, addr := range addrs {
		g.Go(func() error {
			if err := ov.Connect(ctx, addr); err != nil {
				log.Warn("bootstrap dial failed", "addr", addr, "error", err)
				return nil
			}
			connected.Add(1)
			log.Debug("bootstrap peer connected", "addr", addr)
			return nil
		})
	}
	_ = g.Wait()

	n := int(connected.Load())
	log.Info("bootstrap finished", "connected", n, "total", len(addrs))
	return n
}
