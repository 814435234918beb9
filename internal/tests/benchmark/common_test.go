package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/kvstore"
	"github.com/yndnr/meshkv/internal/telemetry/logger/logtest"
)

// KeyCounts are the store sizes exercised by the size-dependent benchmarks.
var KeyCounts = []int{1000, 10000, 50000}

// newStore creates a local-only store with open write access.
func newStore(b *testing.B, dir string) *kvstore.Store {
	b.Helper()
	m, err := kvstore.NewManager(kvstore.Options{
		Dir:      dir,
		InMemory: dir == "",
		NodeID:   "bench-node",
		Logger:   logtest.New(),
	})
	if err != nil {
		b.Fatalf("NewManager: %v", err)
	}
	b.Cleanup(func() { m.Close() })

	st, err := m.Create(context.Background(), "bench", domain.OpenWrite())
	if err != nil {
		b.Fatalf("Create: %v", err)
	}
	return st
}

// prefill writes count keys.
func prefill(b *testing.B, st *kvstore.Store, count int) {
	b.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		if err := st.Put(ctx, fmt.Sprintf("key-%06d", i), "value"); err != nil {
			b.Fatalf("Put: %v", err)
		}
	}
}

// reportMemory reports heap usage after a GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// runWithKeyCounts runs benchFn once per entry of counts.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
