package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/storage"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
	"github.com/yndnr/meshkv/pkg/cmap"
)

var (
	keyManifest = []byte("manifest")
	prefixEntry = []byte("e/")
)

// Store is an attached replicated key-value store.
type Store struct {
	addr      Address
	nodeID    string
	policy    domain.AccessPolicy
	engine    storage.KVEngine
	transport Transport
	logger    logger.Logger
	metrics   *metric.Registry

	mu       sync.RWMutex
	manifest *Manifest

	// pending holds remote entries received before the manifest, whose
	// authors cannot be checked yet.
	pending     []pendingBatch
	pendingSize int

	entries *cmap.Map[Entry]
	clock   atomic.Uint64

	seen    *lru.Cache[uint64, struct{}]
	limiter *rate.Limiter
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// writeMu orders apply-then-persist so badger never holds an older
	// entry than memory.
	writeMu sync.Mutex

	listenMu  sync.RWMutex
	listeners []func(domain.Snapshot)
	events    chan domain.Snapshot

	loaded      atomic.Bool
	closed      atomic.Bool
	unsubscribe func()
	release     func()
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

type storeParams struct {
	addr      Address
	manifest  *Manifest
	nodeID    string
	policy    domain.AccessPolicy
	engine    storage.KVEngine
	transport Transport
	logger    logger.Logger
	metrics   *metric.Registry
	syncRate  rate.Limit
	syncBurst int
	seenSize  int
	release   func()
}

func newStore(p storeParams) (*Store, error) {
	seen, err := lru.New[uint64, struct{}](p.seenSize)
	if err != nil {
		return nil, fmt.Errorf("seen cache: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSyncPayload))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &Store{
		addr:      p.addr,
		nodeID:    p.nodeID,
		policy:    p.policy.Normalized(),
		engine:    p.engine,
		transport: p.transport,
		logger:    p.logger.With("store", p.addr.Name),
		metrics:   p.metrics,
		manifest:  p.manifest,
		entries:   cmap.New[Entry](),
		seen:      seen,
		limiter:   rate.NewLimiter(p.syncRate, p.syncBurst),
		encoder:   enc,
		decoder:   dec,
		events:    make(chan domain.Snapshot, eventBuffer),
		stopCh:    make(chan struct{}),
		release:   p.release,
	}

	s.wg.Add(1)
	go s.dispatch()
	return s, nil
}

// Load restores persisted entries, joins the store's replication topic
// and asks peers for their state. It does not wait for answers.
func (s *Store) Load(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if !s.loaded.CompareAndSwap(false, true) {
		return nil
	}

	n := 0
	err := s.engine.Scan(ctx, prefixEntry, func(key, value []byte) bool {
		var e Entry
		if jerr := json.Unmarshal(value, &e); jerr != nil {
			s.logger.Warn("skipping corrupt entry", "key", string(key), "error", jerr)
			return true
		}
		s.entries.Set(e.Key, e)
		s.observeClock(e.Clock)
		n++
		return true
	})
	if err != nil {
		return fmt.Errorf("scan entries: %w", err)
	}

	if s.transport != nil {
		s.unsubscribe = s.transport.Subscribe(s.addr.Topic(), s.handleMessage)
		if err := s.requestSync(ctx); err != nil {
			s.logger.Warn("sync request failed", "error", err)
		}
	}

	s.logger.Info("store loaded", "entries", n, "clock", s.clock.Load())
	return nil
}

// Put writes key=value. It fails with domain.ErrWriteDenied when the
// local access policy does not list this node.
func (s *Store) Put(ctx context.Context, key, value string) error {
	return s.write(ctx, OpPut, key, value)
}

// Delete removes key by writing a tombstone.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.write(ctx, OpDel, key, "")
}

func (s *Store) write(ctx context.Context, op Op, key, value string) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if key == "" {
		return domain.ErrStoreWrite.WithDetails("empty key")
	}
	if !s.policy.CanWrite(s.nodeID) {
		return domain.ErrWriteDenied.WithDetails(s.nodeID)
	}

	s.writeMu.Lock()
	e := newEntry(op, key, value, s.clock.Add(1), s.nodeID)
	if err := s.persist(ctx, []Entry{e}); err != nil {
		s.writeMu.Unlock()
		return domain.ErrStoreWrite.WithDetails(key).WithCause(err)
	}
	s.entries.Set(key, e)
	s.writeMu.Unlock()

	if s.transport != nil {
		if err := s.broadcastEntry(ctx, e); err != nil {
			s.logger.Warn("broadcast entry failed", "key", key, "error", err)
		}
	}
	s.logger.Debug("local write", "op", string(op), "key", key, "clock", e.Clock)
	return nil
}

// Get returns the visible value for key.
func (s *Store) Get(key string) (string, bool) {
	e, ok := s.entries.Get(key)
	if !ok || e.Deleted() {
		return "", false
	}
	return e.Value, true
}

// All returns a copy of every visible key.
func (s *Store) All() domain.Snapshot {
	snap := make(domain.Snapshot, s.entries.Count())
	s.entries.Range(func(key string, e Entry) bool {
		if !e.Deleted() {
			snap[key] = e.Value
		}
		return true
	})
	return snap
}

// OnReplicated registers fn to run after each merge that changed state.
// Listeners run on a single goroutine, one call per merge, in merge order.
func (s *Store) OnReplicated(fn func(domain.Snapshot)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ContentAddress returns the manifest CID.
func (s *Store) ContentAddress() domain.ContentAddress {
	return s.addr.ContentAddress()
}

// Address returns the full store address.
func (s *Store) Address() string {
	return s.addr.String()
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.addr.Name
}

// Policy returns the local write policy.
func (s *Store) Policy() domain.AccessPolicy {
	return s.policy
}

// Manifest returns the store manifest once it is known. A joining node
// learns it from the first sync response.
func (s *Store) Manifest() (Manifest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manifest == nil {
		return Manifest{}, false
	}
	return *s.manifest, true
}

// Close leaves the replication topic and closes the engine.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stopCh)
	s.wg.Wait()

	s.encoder.Close()
	s.decoder.Close()

	if s.release != nil {
		s.release()
	}
	return s.engine.Close()
}

type pendingBatch struct {
	from    string
	entries []Entry
}

// merge applies remote entries and reports how many changed state.
// Before the manifest is known the entries are held back instead.
func (s *Store) merge(ctx context.Context, from string, entries []Entry) int {
	s.mu.Lock()
	manifest := s.manifest
	if manifest == nil {
		s.holdLocked(from, entries)
		s.mu.Unlock()
		return 0
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	var changed []Entry
	for _, e := range entries {
		if !e.valid() {
			s.logger.Debug("dropping malformed entry", "from", from, "id", e.ID)
			continue
		}
		if !manifest.Policy().CanWrite(e.Author) {
			s.logger.Debug("dropping entry from unauthorized writer", "from", from, "author", e.Author, "key", e.Key)
			continue
		}
		s.observeClock(e.Clock)
		if s.entries.Apply(e.Key, func(cur Entry, ok bool) (Entry, bool) {
			if ok && !e.Newer(cur) {
				return cur, false
			}
			return e, true
		}) {
			changed = append(changed, e)
		}
	}

	if len(changed) == 0 {
		s.writeMu.Unlock()
		return 0
	}
	if err := s.persist(ctx, changed); err != nil {
		s.logger.Error("persist merged entries failed", "count", len(changed), "error", err)
	}
	snap := s.All()
	s.writeMu.Unlock()

	s.notify(snap)
	return len(changed)
}

func (s *Store) holdLocked(from string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	if s.pendingSize+len(entries) > maxPendingEntries {
		// The sync response carries full state, so dropped ops are recovered.
		s.logger.Debug("dropping entries received before manifest", "from", from, "count", len(entries))
		return
	}
	s.pending = append(s.pending, pendingBatch{from: from, entries: entries})
	s.pendingSize += len(entries)
}

// takePending returns the held entries once the manifest is known.
func (s *Store) takePending() []pendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest == nil {
		return nil
	}
	out := s.pending
	s.pending, s.pendingSize = nil, 0
	return out
}

func (s *Store) persist(ctx context.Context, entries []Entry) error {
	pairs := make([]storage.KV, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pairs = append(pairs, storage.KV{Key: entryKey(e.Key), Value: data})
	}
	return s.engine.SetBatch(ctx, pairs)
}

func (s *Store) observeClock(c uint64) {
	for {
		cur := s.clock.Load()
		if c <= cur || s.clock.CompareAndSwap(cur, c) {
			return
		}
	}
}

// snapshotEntries returns every entry including tombstones, key ordered.
func (s *Store) snapshotEntries() []Entry {
	out := s.entries.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) adoptManifest(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest != nil {
		return nil
	}
	c, err := manifestCID(data)
	if err != nil {
		return err
	}
	if !c.Equals(s.addr.Root) {
		return fmt.Errorf("manifest cid %s does not match store root %s", c, s.addr.Root)
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return err
	}
	if err := s.engine.Set(ctx, keyManifest, data); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	s.manifest = &m
	s.logger.Info("manifest received", "write", m.Access.Write)
	return nil
}

func (s *Store) notify(snap domain.Snapshot) {
	select {
	case s.events <- snap:
	case <-s.stopCh:
	}
}

func (s *Store) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case snap := <-s.events:
			s.listenMu.RLock()
			listeners := append([]func(domain.Snapshot){}, s.listeners...)
			s.listenMu.RUnlock()
			for _, fn := range listeners {
				fn(snap.Clone())
			}
		}
	}
}

func entryKey(key string) []byte {
	return append(append([]byte{}, prefixEntry...), key...)
}

func loadManifest(ctx context.Context, engine storage.KVEngine) (*Manifest, error) {
	data, err := engine.Get(ctx, keyManifest)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const (
	sendTimeout = 10 * time.Second
	eventBuffer = 64

	maxPendingEntries = 4096
)
