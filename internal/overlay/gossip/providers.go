package gossip

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ProviderRecord says a peer can serve a content address until ExpiresAt.
type ProviderRecord struct {
	Key       string    `json:"key"`
	PeerID    string    `json:"peer"`
	Addrs     []string  `json:"addrs"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProviderTable holds provider records with a TTL.
type ProviderTable struct {
	clock clock.Clock

	mu    sync.RWMutex
	store map[string]map[string]ProviderRecord // key -> peer -> record
}

// NewProviderTable creates an empty table. A nil clock uses wall time.
func NewProviderTable(clk clock.Clock) *ProviderTable {
	if clk == nil {
		clk = clock.New()
	}
	return &ProviderTable{clock: clk, store: make(map[string]map[string]ProviderRecord)}
}

// Add records peerID as a provider of key for ttl from now.
func (t *ProviderTable) Add(key, peerID string, addrs []string, ttl time.Duration) ProviderRecord {
	rec := ProviderRecord{
		Key:       key,
		PeerID:    peerID,
		Addrs:     append([]string(nil), addrs...),
		ExpiresAt: t.clock.Now().Add(ttl),
	}
	t.Merge(rec)
	return rec
}

// Merge stores rec unless it is expired or an existing record for the
// same key and peer lives longer. Reports whether the table changed.
func (t *ProviderTable) Merge(rec ProviderRecord) bool {
	if !rec.ExpiresAt.After(t.clock.Now()) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	peers, ok := t.store[rec.Key]
	if !ok {
		peers = make(map[string]ProviderRecord)
		t.store[rec.Key] = peers
	}
	if cur, ok := peers[rec.PeerID]; ok && !rec.ExpiresAt.After(cur.ExpiresAt) {
		return false
	}
	peers[rec.PeerID] = rec
	return true
}

// Get returns the unexpired providers of key ordered by peer ID.
func (t *ProviderTable) Get(key string) []ProviderRecord {
	now := t.clock.Now()
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []ProviderRecord
	for _, rec := range t.store[key] {
		if rec.ExpiresAt.After(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// Records returns every unexpired record.
func (t *ProviderTable) Records() []ProviderRecord {
	now := t.clock.Now()
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []ProviderRecord
	for _, peers := range t.store {
		for _, rec := range peers {
			if rec.ExpiresAt.After(now) {
				out = append(out, rec)
			}
		}
	}
	return out
}

// CleanupExpired drops expired records and returns how many were removed.
func (t *ProviderTable) CleanupExpired() int {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for key, peers := range t.store {
		for id, rec := range peers {
			if !rec.ExpiresAt.After(now) {
				delete(peers, id)
				count++
			}
		}
		if len(peers) == 0 {
			delete(t.store, key)
		}
	}
	return count
}

// Size returns the number of stored records, expired ones included.
func (t *ProviderTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, peers := range t.store {
		n += len(peers)
	}
	return n
}
