package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/telemetry/logger/logtest"
)

// hub is an in-process message bus connecting memTransports.
type hub struct {
	mu    sync.Mutex
	nodes map[string]*memTransport
}

func newHub() *hub {
	return &hub{nodes: make(map[string]*memTransport)}
}

func (h *hub) join(id string) *memTransport {
	t := &memTransport{id: id, hub: h, subs: make(map[string]func(string, []byte))}
	h.mu.Lock()
	h.nodes[id] = t
	h.mu.Unlock()
	return t
}

type memTransport struct {
	id  string
	hub *hub

	mu    sync.Mutex
	subs  map[string]func(string, []byte)
	sends int
}

func (t *memTransport) LocalID() string { return t.id }

func (t *memTransport) deliver(from, topic string, msg []byte) {
	t.mu.Lock()
	fn := t.subs[topic]
	t.mu.Unlock()
	if fn != nil {
		cp := append([]byte(nil), msg...)
		go fn(from, cp)
	}
}

func (t *memTransport) Broadcast(ctx context.Context, topic string, msg []byte) error {
	t.hub.mu.Lock()
	peers := make([]*memTransport, 0, len(t.hub.nodes))
	for id, n := range t.hub.nodes {
		if id != t.id {
			peers = append(peers, n)
		}
	}
	t.hub.mu.Unlock()
	for _, p := range peers {
		p.deliver(t.id, topic, msg)
	}
	return nil
}

func (t *memTransport) Send(ctx context.Context, to, topic string, msg []byte) error {
	t.mu.Lock()
	t.sends++
	t.mu.Unlock()

	t.hub.mu.Lock()
	p, ok := t.hub.nodes[to]
	t.hub.mu.Unlock()
	if !ok {
		return domain.ErrPeerUnknown.WithDetails(to)
	}
	p.deliver(t.id, topic, msg)
	return nil
}

func (t *memTransport) Subscribe(topic string, fn func(string, []byte)) func() {
	t.mu.Lock()
	t.subs[topic] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, topic)
		t.mu.Unlock()
	}
}

func (t *memTransport) Sends() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sends
}

func newMemManager(t *testing.T, tr Transport, nodeID string) *Manager {
	t.Helper()
	m, err := NewManager(Options{InMemory: true, Transport: tr, NodeID: nodeID, Logger: logtest.New()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func nextSnapshot(t *testing.T, ch <-chan domain.Snapshot) domain.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("no replication event")
		return nil
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
