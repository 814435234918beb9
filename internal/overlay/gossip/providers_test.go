package gossip

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestProviderTable_AddGet(t *testing.T) {
	clk := clock.NewMock()
	table := NewProviderTable(clk)

	table.Add("cid-a", "node-b", []string{"10.0.0.2:7946"}, time.Minute)
	table.Add("cid-a", "node-a", []string{"10.0.0.1:7946"}, time.Minute)
	table.Add("cid-b", "node-a", nil, time.Minute)

	got := table.Get("cid-a")
	if len(got) != 2 {
		t.Fatalf("Get() returned %d records, want 2", len(got))
	}
	if got[0].PeerID != "node-a" || got[1].PeerID != "node-b" {
		t.Errorf("Get() order = %s,%s, want node-a,node-b", got[0].PeerID, got[1].PeerID)
	}
	if table.Size() != 3 {
		t.Errorf("Size() = %d, want 3", table.Size())
	}
	if got := table.Get("missing"); len(got) != 0 {
		t.Errorf("Get(missing) = %v, want empty", got)
	}
}

func TestProviderTable_Merge(t *testing.T) {
	clk := clock.NewMock()
	table := NewProviderTable(clk)
	now := clk.Now()

	rec := ProviderRecord{Key: "cid", PeerID: "node-a", ExpiresAt: now.Add(time.Minute)}

	tests := []struct {
		name string
		rec  ProviderRecord
		want bool
	}{
		{"new record", rec, true},
		{"same record", rec, false},
		{"shorter ttl", ProviderRecord{Key: "cid", PeerID: "node-a", ExpiresAt: now.Add(time.Second)}, false},
		{"longer ttl", ProviderRecord{Key: "cid", PeerID: "node-a", ExpiresAt: now.Add(time.Hour)}, true},
		{"already expired", ProviderRecord{Key: "cid", PeerID: "node-b", ExpiresAt: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Merge(tt.rec); got != tt.want {
				t.Errorf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderTable_Expiry(t *testing.T) {
	clk := clock.NewMock()
	table := NewProviderTable(clk)

	table.Add("cid", "short", nil, time.Second)
	table.Add("cid", "long", nil, time.Hour)

	clk.Add(2 * time.Second)

	got := table.Get("cid")
	if len(got) != 1 || got[0].PeerID != "long" {
		t.Fatalf("Get() after expiry = %v, want only long", got)
	}
	if len(table.Records()) != 1 {
		t.Errorf("Records() = %d, want 1", len(table.Records()))
	}
	if table.Size() != 2 {
		t.Errorf("Size() before cleanup = %d, want 2", table.Size())
	}
	if n := table.CleanupExpired(); n != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", n)
	}
	if table.Size() != 1 {
		t.Errorf("Size() after cleanup = %d, want 1", table.Size())
	}

	clk.Add(2 * time.Hour)
	table.CleanupExpired()
	if table.Size() != 0 {
		t.Errorf("Size() after full expiry = %d, want 0", table.Size())
	}
}

func TestProviderTable_AddCopiesAddrs(t *testing.T) {
	table := NewProviderTable(nil)
	addrs := []string{"a"}
	table.Add("cid", "p", addrs, time.Minute)
	addrs[0] = "mutated"

	if got := table.Get("cid")[0].Addrs[0]; got != "a" {
		t.Errorf("stored addr = %q, want a", got)
	}
}
