package kvstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/storage"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

// Defaults for Options.
const (
	DefaultSyncRate      = 2.0
	DefaultSyncBurst     = 4
	DefaultSeenCacheSize = 4096
)

// Options configures a Manager.
type Options struct {
	// Dir holds one badger directory per store root.
	Dir string

	// InMemory keeps stores in memory (tests, ephemeral nodes).
	InMemory bool

	Badger storage.BadgerConfig

	// Transport replicates stores. Nil gives a local-only store.
	Transport Transport

	// NodeID is the author recorded on local writes. Defaults to
	// Transport.LocalID().
	NodeID string

	// SyncRate limits sync responses per second; SyncBurst is the bucket.
	SyncRate  float64
	SyncBurst int

	SeenCacheSize int

	Logger  logger.Logger
	Metrics *metric.Registry
}

// Manager creates and opens stores.
type Manager struct {
	opts   Options
	logger logger.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager validates opts and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" && !opts.InMemory {
		return nil, domain.ErrInvalidConfig.WithDetails("store dir is required")
	}
	if opts.NodeID == "" && opts.Transport != nil {
		opts.NodeID = opts.Transport.LocalID()
	}
	if opts.NodeID == "" {
		return nil, domain.ErrInvalidConfig.WithDetails("node id is required")
	}
	if opts.Badger == (storage.BadgerConfig{}) {
		opts.Badger = storage.DefaultBadgerConfig()
	}
	if opts.SyncRate <= 0 {
		opts.SyncRate = DefaultSyncRate
	}
	if opts.SyncBurst <= 0 {
		opts.SyncBurst = DefaultSyncBurst
	}
	if opts.SeenCacheSize <= 0 {
		opts.SeenCacheSize = DefaultSeenCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger.With("component", "kvstore"),
		stores: make(map[string]*Store),
	}, nil
}

// Create creates (or reopens) the store defined by name and policy. The
// address is derived from the manifest, so it is stable across restarts.
func (m *Manager) Create(ctx context.Context, name string, policy domain.AccessPolicy) (*Store, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("invalid store name %q", name))
	}

	manifest := NewManifest(name, policy)
	root, err := manifest.CID()
	if err != nil {
		return nil, err
	}
	data, err := manifest.Encode()
	if err != nil {
		return nil, err
	}

	addr := Address{Root: root, Name: name}
	if err := m.checkNotOpen(addr); err != nil {
		return nil, err
	}
	engine, err := m.openEngine(addr)
	if err != nil {
		return nil, err
	}
	if err := engine.Set(ctx, keyManifest, data); err != nil {
		engine.Close()
		return nil, fmt.Errorf("persist manifest: %w", err)
	}

	s, err := m.attach(addr, &manifest, policy, engine)
	if err != nil {
		return nil, err
	}
	m.logger.Info("store created", "address", addr.String(), "write", manifest.Access.Write)
	return s, nil
}

// Open opens an existing store by address. policy governs local writes
// only; remote entries are checked against the store manifest.
func (m *Manager) Open(ctx context.Context, address string, policy domain.AccessPolicy) (*Store, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if err := m.checkNotOpen(addr); err != nil {
		return nil, err
	}
	engine, err := m.openEngine(addr)
	if err != nil {
		return nil, err
	}
	manifest, err := loadManifest(ctx, engine)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	s, err := m.attach(addr, manifest, policy, engine)
	if err != nil {
		return nil, err
	}
	m.logger.Info("store opened", "address", addr.String(), "manifest_known", manifest != nil)
	return s, nil
}

func (m *Manager) checkNotOpen(addr Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[addr.String()]; ok {
		return domain.ErrStoreOpen.WithDetails("store already open: " + addr.String())
	}
	return nil
}

func (m *Manager) openEngine(addr Address) (*storage.BadgerEngine, error) {
	cfg := storage.KVConfig{Badger: m.opts.Badger, InMemory: m.opts.InMemory}
	if !m.opts.InMemory {
		cfg.Dir = filepath.Join(m.opts.Dir, addr.Root.String())
	}
	engine, err := storage.NewBadgerEngine(cfg, logger.Slog(m.logger))
	if err != nil {
		return nil, err
	}
	if err := engine.RegisterMetrics(m.opts.Metrics.Registerer()); err != nil {
		m.logger.Debug("badger metrics not registered", "error", err)
	}
	return engine, nil
}

func (m *Manager) attach(addr Address, manifest *Manifest, policy domain.AccessPolicy, engine storage.KVEngine) (*Store, error) {
	key := addr.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[key]; ok {
		engine.Close()
		return nil, domain.ErrStoreOpen.WithDetails("store already open: " + key)
	}

	s, err := newStore(storeParams{
		addr:      addr,
		manifest:  manifest,
		nodeID:    m.opts.NodeID,
		policy:    policy,
		engine:    engine,
		transport: m.opts.Transport,
		logger:    m.logger,
		metrics:   m.opts.Metrics,
		syncRate:  rate.Limit(m.opts.SyncRate),
		syncBurst: m.opts.SyncBurst,
		seenSize:  m.opts.SeenCacheSize,
		release:   func() { m.release(key) },
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	m.stores[key] = s
	return s, nil
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	delete(m.stores, key)
	m.mu.Unlock()
}

// Close closes every store still open.
func (m *Manager) Close() error {
	m.mu.Lock()
	stores := make([]*Store, 0, len(m.stores))
	for _, s := range m.stores {
		stores = append(stores, s)
	}
	m.mu.Unlock()

	var err error
	for _, s := range stores {
		err = multierr.Append(err, s.Close())
	}
	return err
}
