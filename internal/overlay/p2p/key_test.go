package p2p

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateKey(t *testing.T) {
	t.Run("ephemeral", func(t *testing.T) {
		a, created, err := LoadOrCreateKey("")
		if err != nil {
			t.Fatalf("LoadOrCreateKey() error = %v", err)
		}
		if !created {
			t.Error("created = false, want true")
		}
		b, _, _ := LoadOrCreateKey("")
		if a.Equals(b) {
			t.Error("ephemeral keys should differ")
		}
	})

	t.Run("persisted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keys", "node.key")

		first, created, err := LoadOrCreateKey(path)
		if err != nil {
			t.Fatalf("LoadOrCreateKey() error = %v", err)
		}
		if !created {
			t.Error("first load: created = false, want true")
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("key file not written: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
		}

		second, created, err := LoadOrCreateKey(path)
		if err != nil {
			t.Fatalf("second LoadOrCreateKey() error = %v", err)
		}
		if created {
			t.Error("second load: created = true, want false")
		}
		if !first.Equals(second) {
			t.Error("reloaded key differs from persisted key")
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node.key")
		if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, _, err := LoadOrCreateKey(path); err == nil {
			t.Fatal("LoadOrCreateKey() error = nil, want decode error")
		}
	})
}
