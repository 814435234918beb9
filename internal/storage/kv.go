package storage

import (
	"context"
	"time"
)

// KVEngine is the embedded key-value engine behind a replicated store.
//
// Implementations must be safe for concurrent use and durable across
// restarts unless configured in-memory.
type KVEngine interface {
	// Get returns ErrKeyNotFound if key does not exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	Set(ctx context.Context, key, value []byte) error

	// SetBatch writes all pairs. Pairs are applied in order; a later pair
	// for the same key wins.
	SetBatch(ctx context.Context, pairs []KV) error

	Delete(ctx context.Context, key []byte) error

	// Scan iterates over keys with a given prefix in key order.
	// fn returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// GC reclaims value log space. A no-op for in-memory engines.
	GC(ctx context.Context) error

	Stats(ctx context.Context) (*KVStats, error)

	Close() error
}

// KV is a key-value pair for batch writes.
type KV struct {
	Key   []byte
	Value []byte
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// LSMSize is the LSM tree size in bytes.
	LSMSize uint64

	// ValueLogSize is the value log size in bytes.
	ValueLogSize uint64

	// LastGCTime is the last GC run (Unix milliseconds), zero if never.
	LastGCTime int64

	// GCRuns counts value log rewrites performed by GC.
	GCRuns uint64
}

// TotalSize is the LSM plus value log size.
func (s *KVStats) TotalSize() uint64 {
	return s.LSMSize + s.ValueLogSize
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory (tests, ephemeral nodes).
	InMemory bool

	Badger BadgerConfig
}

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs. Zero disables.
	GCInterval time.Duration

	// GCDiscardRatio is passed to RunValueLogGC.
	GCDiscardRatio float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// SyncWrites fsyncs after every write.
	SyncWrites bool

	// MetricsInterval is how often size gauges are refreshed.
	MetricsInterval time.Duration
}

// DefaultKVConfig returns the default KV configuration.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// InMemoryKVConfig returns a configuration for an in-memory engine.
func InMemoryKVConfig() KVConfig {
	cfg := DefaultKVConfig("")
	cfg.InMemory = true
	cfg.Badger.GCInterval = 0
	return cfg
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:      10 * time.Minute,
		GCDiscardRatio:  0.5,
		CacheSize:       64 << 20, // 64MB
		SyncWrites:      true,
		MetricsInterval: 15 * time.Second,
	}
}
