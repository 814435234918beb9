package gossip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/telemetry/logger/logtest"
)

func newTestOverlay(t *testing.T, id, secret string) *Overlay {
	t.Helper()
	o, err := New(Config{
		NodeID:   id,
		BindAddr: "127.0.0.1",
		BindPort: 0,
		Profile:  "local",
		Secret:   secret,
		Logger:   logtest.New(),
	})
	if err != nil {
		t.Fatalf("New(%s) error = %v", id, err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_InvalidProfile(t *testing.T) {
	_, err := New(Config{Profile: "moon", Logger: logtest.New()})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestOverlay_GeneratedIdentity(t *testing.T) {
	o := newTestOverlay(t, "", "")
	id := o.Identity()
	if len(id.ID) <= len("node-") || id.ID[:5] != "node-" {
		t.Errorf("Identity().ID = %q, want node- prefix", id.ID)
	}
	if len(id.Addrs) != 1 {
		t.Errorf("Identity().Addrs = %v, want one address", id.Addrs)
	}
}

func TestOverlay_AnnounceAlone(t *testing.T) {
	o := newTestOverlay(t, "solo", "")
	err := o.Announce(context.Background(), domain.ContentAddress("bafkreiabc"))
	if !errors.Is(err, domain.ErrNoRoutingPeers) {
		t.Fatalf("Announce() error = %v, want ErrNoRoutingPeers", err)
	}
	peers, err := o.Peers(context.Background())
	if err != nil {
		t.Fatalf("Peers() error = %v", err)
	}
	if peers.Count() != 0 {
		t.Errorf("Peers().Count() = %d, want 0", peers.Count())
	}
}

func TestOverlay_ConnectCancelled(t *testing.T) {
	o := newTestOverlay(t, "cancel", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Join may still finish first against an unreachable address; either
	// way Connect must return an error.
	if err := o.Connect(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("Connect() error = nil, want error")
	}
}

func TestOverlay_TwoNodes(t *testing.T) {
	for _, secret := range []string{"", "shared-secret"} {
		name := "plain"
		if secret != "" {
			name = "encrypted"
		}
		t.Run(name, func(t *testing.T) {
			a := newTestOverlay(t, "node-a", secret)
			b := newTestOverlay(t, "node-b", secret)
			ctx := context.Background()

			var (
				mu       sync.Mutex
				received []string
				from     []string
			)
			b.Subscribe("meshkv/test", func(f string, msg []byte) {
				mu.Lock()
				received = append(received, string(msg))
				from = append(from, f)
				mu.Unlock()
			})

			if err := b.Connect(ctx, a.Identity().Addrs[0]); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			waitUntil(t, "membership", func() bool {
				pa, _ := a.Peers(ctx)
				pb, _ := b.Peers(ctx)
				return pa.Contains("node-b") && pb.Contains("node-a")
			})

			if err := a.Broadcast(ctx, "meshkv/test", []byte("hello")); err != nil {
				t.Fatalf("Broadcast() error = %v", err)
			}
			if err := a.Send(ctx, "node-b", "meshkv/test", []byte("direct")); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			waitUntil(t, "messages", func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(received) == 2
			})
			mu.Lock()
			for _, f := range from {
				if f != "node-a" {
					t.Errorf("message from %q, want node-a", f)
				}
			}
			mu.Unlock()

			addr := domain.ContentAddress("bafkreiabc")
			if err := a.Announce(ctx, addr); err != nil {
				t.Fatalf("Announce() error = %v", err)
			}
			if got := a.FindProviders(addr); len(got) != 1 || got[0].PeerID != "node-a" {
				t.Errorf("local FindProviders() = %v, want node-a", got)
			}
			waitUntil(t, "provider gossip", func() bool {
				got := b.FindProviders(addr)
				return len(got) == 1 && got[0].PeerID == "node-a"
			})
		})
	}
}

func TestOverlay_SendUnknownPeer(t *testing.T) {
	o := newTestOverlay(t, "lonely", "")
	err := o.Send(context.Background(), "ghost", "topic", []byte("x"))
	if !errors.Is(err, domain.ErrPeerUnknown) {
		t.Fatalf("Send() error = %v, want ErrPeerUnknown", err)
	}
}

func TestOverlay_Unsubscribe(t *testing.T) {
	o := newTestOverlay(t, "subs", "")
	unsubscribe := o.Subscribe("t", func(string, []byte) {})
	o.subsMu.RLock()
	_, ok := o.subs["t"]
	o.subsMu.RUnlock()
	if !ok {
		t.Fatal("subscription not registered")
	}
	unsubscribe()
	o.subsMu.RLock()
	_, ok = o.subs["t"]
	o.subsMu.RUnlock()
	if ok {
		t.Error("subscription still registered after unsubscribe")
	}
}
