package confloader

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	Store struct {
		Name        string        `koanf:"name"`
		LoadTimeout time.Duration `koanf:"load_timeout"`
		SyncRate    float64       `koanf:"sync_rate"`
	} `koanf:"store"`
	Node struct {
		Mode       string   `koanf:"mode"`
		KnownPeers []string `koanf:"known_peers"`
	} `koanf:"node"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshkv.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewLoader_Options(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/etc/meshkv.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want TEST_", l.envPrefix)
	}
	if l.filePath != "/etc/meshkv.yaml" {
		t.Errorf("filePath = %q, want /etc/meshkv.yaml", l.filePath)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"MESHKV_STORE_NAME", "store.name"},
		{"MESHKV_STORE_LOAD_TIMEOUT", "store.load_timeout"},
		{"MESHKV_NODE_KNOWN_PEERS", "node.known_peers"},
		{"MESHKV_DEBUG", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
				t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
store:
  name: shared-db
  load_timeout: 45s
node:
  mode: join
  known_peers: ["10.0.0.1:7946", "10.0.0.2:7946"]
`)
	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Name != "shared-db" {
		t.Errorf("store.name = %q, want shared-db", cfg.Store.Name)
	}
	if cfg.Store.LoadTimeout != 45*time.Second {
		t.Errorf("store.load_timeout = %v, want 45s", cfg.Store.LoadTimeout)
	}
	if len(cfg.Node.KnownPeers) != 2 {
		t.Errorf("node.known_peers = %v, want two entries", cfg.Node.KnownPeers)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() = false after Load()")
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v, want nil", err)
	}
	if err := l.LoadFile("/nonexistent/meshkv.yaml"); err == nil {
		t.Error("LoadFile(missing) error = nil, want error")
	}
}

func TestLoader_Priority(t *testing.T) {
	path := writeConfig(t, `
store:
  name: from-file
  sync_rate: 1
node:
  mode: create
`)
	t.Setenv("MESHKV_STORE_NAME", "from-env")
	t.Setenv("MESHKV_STORE_SYNC_RATE", "8")
	t.Setenv("MESHKV_NODE_MODE", "join")

	l := NewLoader(WithConfigFile(path), WithFlags(map[string]any{"node.mode": "create"}))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Name != "from-env" {
		t.Errorf("store.name = %q, want from-env (env beats file)", cfg.Store.Name)
	}
	if cfg.Store.SyncRate != 8 {
		t.Errorf("store.sync_rate = %v, want 8", cfg.Store.SyncRate)
	}
	if cfg.Node.Mode != "create" {
		t.Errorf("node.mode = %q, want create (flag beats env)", cfg.Node.Mode)
	}
}

func TestLoader_KeepsDefaults(t *testing.T) {
	var cfg testConfig
	cfg.Store.Name = "default-db"
	cfg.Store.LoadTimeout = time.Minute

	l := NewLoader(WithFlags(map[string]any{"store.load_timeout": "5s"}))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Name != "default-db" {
		t.Errorf("store.name = %q, want default kept", cfg.Store.Name)
	}
	if cfg.Store.LoadTimeout != 5*time.Second {
		t.Errorf("store.load_timeout = %v, want 5s", cfg.Store.LoadTimeout)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"http.addr": "127.0.0.1:9000"}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if got := l.GetString("http.addr"); got != "127.0.0.1:9000" {
		t.Errorf("http.addr = %q, want 127.0.0.1:9000", got)
	}
	if l.Get("http") == nil {
		t.Error("dotted keys were not unflattened into sections")
	}
	if len(l.Keys()) == 0 {
		t.Error("Keys() is empty")
	}
}

func TestLoader_Strict(t *testing.T) {
	t.Run("unknown key rejected", func(t *testing.T) {
		path := writeConfig(t, `
store:
  name: ok
  sync_rat: 3
nod:
  mode: create
`)
		var cfg testConfig
		err := NewLoader(WithConfigFile(path), WithStrict()).Load(&cfg)
		if !errors.Is(err, ErrUnknownKeys) {
			t.Fatalf("Load() error = %v, want ErrUnknownKeys", err)
		}
		if !strings.Contains(err.Error(), "nod.mode, store.sync_rat") {
			t.Errorf("error should list sorted unknown keys: %v", err)
		}
	})

	t.Run("env is not checked", func(t *testing.T) {
		path := writeConfig(t, "store:\n  name: ok\n")
		t.Setenv("MESHKV_SERVER", "127.0.0.1:5180")
		var cfg testConfig
		if err := NewLoader(WithConfigFile(path), WithStrict()).Load(&cfg); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	})

	t.Run("lenient by default", func(t *testing.T) {
		path := writeConfig(t, "extra:\n  key: 1\n")
		var cfg testConfig
		if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	})
}

func TestUnknownKeys(t *testing.T) {
	type inner struct {
		Name string `koanf:"name"`
	}
	type target struct {
		Inner  inner             `koanf:"inner"`
		Ptr    *inner            `koanf:"ptr"`
		Seed   map[string]string `koanf:"seed"`
		List   []string          `koanf:"list"`
		Hidden string            `koanf:"-"`
		Plain  string
	}

	keys := []string{"inner.name", "ptr.name", "seed", "seed.color", "list", "hidden", "plain", "inner.other"}
	got := UnknownKeys(keys, &target{})
	want := []string{"hidden", "inner.other", "plain"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnknownKeys() = %v, want %v", got, want)
	}

	if got := UnknownKeys(keys, "not a struct"); got != nil {
		t.Errorf("UnknownKeys(non-struct) = %v, want nil", got)
	}
}
