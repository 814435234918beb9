package config

import "time"

// NodeConfig is the root configuration for meshkv-node.
type NodeConfig struct {
	Node     NodeSection     `koanf:"node"`
	Overlay  OverlaySection  `koanf:"overlay"`
	Gate     GateSection     `koanf:"gate"`
	Announce AnnounceSection `koanf:"announce"`
	Monitor  MonitorSection  `koanf:"monitor"`
	Store    StoreSection    `koanf:"store"`
	HTTP     HTTPSection     `koanf:"http"`
	Redis    RedisSection    `koanf:"redis"`
	TLS      TLSSection      `koanf:"tls"`
	Log      LogSection      `koanf:"log"`
}

// NodeSection selects the role and where local state lives.
type NodeSection struct {
	// Mode is "create" or "join".
	Mode string `koanf:"mode"`

	// ID overrides the overlay node name (gossip backend only).
	ID string `koanf:"id"`

	DataDir string `koanf:"data_dir"`
}

// OverlaySection configures the peer-to-peer overlay.
type OverlaySection struct {
	// Backend is "gossip" (memberlist) or "p2p" (libp2p).
	Backend string `koanf:"backend"`

	// Bootstrap peers are dialed concurrently at startup in every mode.
	Bootstrap []string `koanf:"bootstrap"`

	// KnownPeers are dialed by the controller in join mode.
	KnownPeers []string `koanf:"known_peers"`

	// gossip backend
	BindAddr      string        `koanf:"bind_addr"`
	BindPort      int           `koanf:"bind_port"`
	AdvertiseAddr string        `koanf:"advertise_addr"`
	AdvertisePort int           `koanf:"advertise_port"`
	Profile       string        `koanf:"profile"`
	Secret        string        `koanf:"secret"`
	ProviderTTL   time.Duration `koanf:"provider_ttl"`

	// p2p backend
	Listen  []string `koanf:"listen"`
	KeyFile string   `koanf:"key_file"`
	DHTMode string   `koanf:"dht_mode"`
}

// GateSection configures the join-mode peer gate.
type GateSection struct {
	MinPeers     int           `koanf:"min_peers"`
	PollInterval time.Duration `koanf:"poll_interval"`

	// Timeout of zero waits forever.
	Timeout time.Duration `koanf:"timeout"`
}

// AnnounceSection configures content re-announcement.
type AnnounceSection struct {
	Period         time.Duration `koanf:"period"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
}

// MonitorSection configures the peer-count report.
type MonitorSection struct {
	PeerReportInterval time.Duration `koanf:"peer_report_interval"`
}

// StoreSection configures the replicated store.
type StoreSection struct {
	// Name is the store created in create mode.
	Name string `koanf:"name"`

	// Address is the store opened in join mode.
	Address string `koanf:"address"`

	// Write lists node IDs allowed to write. Nil picks the mode default:
	// everyone for create, nobody for join.
	Write []string `koanf:"write"`

	// Seed entries are written after a create-mode node becomes steady.
	Seed map[string]string `koanf:"seed"`

	LoadTimeout time.Duration `koanf:"load_timeout"`
	SyncRate    float64       `koanf:"sync_rate"`
	SyncBurst   int           `koanf:"sync_burst"`
	InMemory    bool          `koanf:"in_memory"`
	GCInterval  time.Duration `koanf:"gc_interval"`
}

// HTTPSection configures the status and metrics endpoint.
type HTTPSection struct {
	// Addr of "" disables the HTTP server.
	Addr string `koanf:"addr"`
}

// RedisSection configures the RESP front-end.
type RedisSection struct {
	// Addr of "" disables the listener.
	Addr string `koanf:"addr"`

	// RateLimit caps commands per second per connection; 0 is unlimited.
	RateLimit int `koanf:"rate_limit"`

	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

// TLSSection enables TLS on the HTTP and RESP listeners. The key pair is
// reloaded when either file changes.
type TLSSection struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`

	// ClientCAFile, if set, requires client certificates signed by it.
	ClientCAFile string `koanf:"client_ca_file"`
}

// Enabled reports whether a key pair is configured.
func (t TLSSection) Enabled() bool {
	return t.CertFile != ""
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
