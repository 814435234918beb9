package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/meshkv/internal/core/domain"
)

// trace records collaborator calls in order across fakes.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	t.events = append(t.events, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}

func (t *trace) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

func (t *trace) Index(event string) int {
	for i, e := range t.Events() {
		if e == event {
			return i
		}
	}
	return -1
}

func (t *trace) Count(event string) int {
	n := 0
	for _, e := range t.Events() {
		if e == event {
			n++
		}
	}
	return n
}

type fakeOverlay struct {
	tr *trace

	mu          sync.Mutex
	peerCounts  []int
	polls       int
	connectErr  error
	announceErr error
	announced   []domain.ContentAddress
}

func (o *fakeOverlay) Identity() domain.NodeIdentity {
	o.tr.add("identity")
	return domain.NodeIdentity{ID: "node-self", Addrs: []string{"127.0.0.1:7946"}}
}

func (o *fakeOverlay) Connect(ctx context.Context, addr string) error {
	o.tr.add("connect:%s", addr)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connectErr
}

func (o *fakeOverlay) Peers(ctx context.Context) (domain.PeerSet, error) {
	o.mu.Lock()
	n := 0
	if len(o.peerCounts) > 0 {
		i := o.polls
		if i >= len(o.peerCounts) {
			i = len(o.peerCounts) - 1
		}
		n = o.peerCounts[i]
	}
	o.polls++
	o.mu.Unlock()

	o.tr.add("peers:%d", n)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("peer-%d", i)
	}
	return domain.NewPeerSet(ids), nil
}

func (o *fakeOverlay) Announce(ctx context.Context, addr domain.ContentAddress) error {
	o.tr.add("announce")
	o.mu.Lock()
	defer o.mu.Unlock()
	o.announced = append(o.announced, addr)
	return o.announceErr
}

func (o *fakeOverlay) setPeers(n int) {
	o.mu.Lock()
	o.peerCounts = []int{n}
	o.polls = 0
	o.mu.Unlock()
}

func (o *fakeOverlay) Announced() []domain.ContentAddress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.ContentAddress(nil), o.announced...)
}

type fakeStore struct {
	tr *trace

	mu        sync.Mutex
	data      domain.Snapshot
	loadErr   error
	putErr    error
	blockLoad bool // Load waits for its context
	listener  func(domain.Snapshot)
	closed    bool
	derived   int
}

func newFakeStore(tr *trace) *fakeStore {
	return &fakeStore{tr: tr, data: domain.Snapshot{}}
}

func (s *fakeStore) Load(ctx context.Context) error {
	s.tr.add("load")
	if s.blockLoad {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.loadErr
}

func (s *fakeStore) Put(ctx context.Context, key, value string) error {
	s.tr.add("put:%s", key)
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) All() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

func (s *fakeStore) OnReplicated(fn func(domain.Snapshot)) {
	s.tr.add("listen")
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// replicate merges remote entries and fires the listener.
func (s *fakeStore) replicate(entries map[string]string) {
	s.mu.Lock()
	for k, v := range entries {
		s.data[k] = v
	}
	snap := s.data.Clone()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (s *fakeStore) ContentAddress() domain.ContentAddress {
	s.mu.Lock()
	s.derived++
	s.mu.Unlock()
	return "bafkreidrs6yb2b4jjrvqgsbtr4wn3xasuw6wdnbnmsl3ylexpdn5xzkzru"
}

func (s *fakeStore) Address() string {
	return "/meshkv/bafkreidrs6yb2b4jjrvqgsbtr4wn3xasuw6wdnbnmsl3ylexpdn5xzkzru/shared-db"
}

func (s *fakeStore) Close() error {
	s.tr.add("close")
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeOpener struct {
	tr      *trace
	store   *fakeStore
	openErr error

	gotName    string
	gotAddress string
	gotPolicy  domain.AccessPolicy
}

func (o *fakeOpener) Create(ctx context.Context, name string, policy domain.AccessPolicy) (Store, error) {
	o.tr.add("create")
	o.gotName, o.gotPolicy = name, policy
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.store, nil
}

func (o *fakeOpener) Open(ctx context.Context, address string, policy domain.AccessPolicy) (Store, error) {
	o.tr.add("open")
	o.gotAddress, o.gotPolicy = address, policy
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.store, nil
}

var errBoom = errors.New("boom")

func waitFor(what string, cond func() bool) error {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}
