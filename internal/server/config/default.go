package config

import "time"

// Default configuration values.
const (
	DefaultDataDir = "/var/lib/meshkv"

	DefaultBackend     = BackendGossip
	DefaultBindAddr    = "0.0.0.0"
	DefaultBindPort    = 7946
	DefaultProfile     = "lan"
	DefaultProviderTTL = 5 * time.Minute
	DefaultListen      = "/ip4/0.0.0.0/tcp/4001"
	DefaultDHTMode     = "auto"

	DefaultMinPeers         = 1
	DefaultGatePollInterval = time.Second

	DefaultAnnouncePeriod         = 60 * time.Second
	DefaultAnnounceAttemptTimeout = 30 * time.Second

	DefaultPeerReportInterval = 3 * time.Second

	DefaultStoreName   = "shared-db"
	DefaultLoadTimeout = 60 * time.Second
	DefaultSyncRate    = 2.0
	DefaultSyncBurst   = 4
	DefaultGCInterval  = 10 * time.Minute

	DefaultHTTPAddr = "127.0.0.1:5180"

	DefaultRedisRateLimit   = 1000
	DefaultRedisIdleTimeout = 5 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Overlay backends.
const (
	BackendGossip = "gossip"
	BackendP2P    = "p2p"
)

// Default returns the default node configuration. Mode is left empty;
// the create and join commands set it.
func Default() *NodeConfig {
	return &NodeConfig{
		Node: NodeSection{
			DataDir: DefaultDataDir,
		},
		Overlay: OverlaySection{
			Backend:     DefaultBackend,
			BindAddr:    DefaultBindAddr,
			BindPort:    DefaultBindPort,
			Profile:     DefaultProfile,
			ProviderTTL: DefaultProviderTTL,
			Listen:      []string{DefaultListen},
			DHTMode:     DefaultDHTMode,
		},
		Gate: GateSection{
			MinPeers:     DefaultMinPeers,
			PollInterval: DefaultGatePollInterval,
		},
		Announce: AnnounceSection{
			Period:         DefaultAnnouncePeriod,
			AttemptTimeout: DefaultAnnounceAttemptTimeout,
		},
		Monitor: MonitorSection{
			PeerReportInterval: DefaultPeerReportInterval,
		},
		Store: StoreSection{
			Name:        DefaultStoreName,
			LoadTimeout: DefaultLoadTimeout,
			SyncRate:    DefaultSyncRate,
			SyncBurst:   DefaultSyncBurst,
			GCInterval:  DefaultGCInterval,
		},
		HTTP: HTTPSection{
			Addr: DefaultHTTPAddr,
		},
		Redis: RedisSection{
			RateLimit:   DefaultRedisRateLimit,
			IdleTimeout: DefaultRedisIdleTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
