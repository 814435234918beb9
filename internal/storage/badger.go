package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// BadgerEngine implements KVEngine using Badger v3.
type BadgerEngine struct {
	db     *badger.DB
	cfg    KVConfig
	logger *slog.Logger

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64
	closed     atomic.Bool

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge

	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ KVEngine = (*BadgerEngine)(nil)

// NewBadgerEngine opens a Badger database.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.BlockCacheSize = cfg.Badger.CacheSize
	opts.SyncWrites = cfg.Badger.SyncWrites && !cfg.InMemory

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	engine := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if cfg.Badger.GCInterval > 0 && !cfg.InMemory {
		engine.wg.Add(1)
		go engine.gcLoop(cfg.Badger.GCInterval)
	}

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.Badger.GCInterval.String())

	return engine, nil
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// SetBatch writes pairs through a Badger WriteBatch, which splits large
// batches across transactions.
func (e *BadgerEngine) SetBatch(ctx context.Context, pairs []KV) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(pairs) == 0 {
		return nil
	}
	wb := e.db.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set(kv.Key, kv.Value); err != nil {
			return fmt.Errorf("badger: batch set: %w", err)
		}
	}
	return wb.Flush()
}

// Delete removes a key.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan iterates over keys with a given prefix.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				break
			}
		}
		return nil
	})
}

// GC runs value log GC until Badger reports nothing left to rewrite.
func (e *BadgerEngine) GC(ctx context.Context) error {
	if e.cfg.InMemory {
		return nil
	}
	if e.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	runs := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.db.RunValueLogGC(e.cfg.Badger.GCDiscardRatio)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRuns.Add(uint64(runs))
	e.logger.Debug("gc completed", "rewrites", runs, "elapsed", time.Since(start).String())
	return nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats(ctx context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	lsm, vlog := e.db.Size()
	return &KVStats{
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   e.lastGCTime.Load(),
		GCRuns:       e.gcRuns.Load(),
	}, nil
}

// Close stops background loops and closes the database.
func (e *BadgerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.stopCh)
	e.wg.Wait()

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	e.logger.Info("badger engine closed")
	return nil
}

// RegisterMetrics registers size gauges on reg and starts refreshing them.
// A nil registerer is ignored.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}

	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meshkv",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	e.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meshkv",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	e.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meshkv",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})

	for _, c := range []prometheus.Collector{e.metricsLSMSize, e.metricsValueLogSize, e.metricsLastGCTime} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("badger: register metrics: %w", err)
		}
	}

	e.updateMetrics()
	interval := e.cfg.Badger.MetricsInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	e.wg.Add(1)
	go e.metricsLoop(interval)
	return nil
}

func (e *BadgerEngine) updateMetrics() {
	stats, err := e.Stats(context.Background())
	if err != nil {
		return
	}
	e.metricsLSMSize.Set(float64(stats.LSMSize))
	e.metricsValueLogSize.Set(float64(stats.ValueLogSize))
	if stats.LastGCTime > 0 {
		e.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
	}
}

func (e *BadgerEngine) metricsLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.updateMetrics()
		case <-e.stopCh:
			return
		}
	}
}

func (e *BadgerEngine) gcLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
// Badger's info output is chatty, so it is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
