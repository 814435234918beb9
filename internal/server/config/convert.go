package config

import (
	"path/filepath"

	"github.com/benbjohnson/clock"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/core/lifecycle"
	"github.com/yndnr/meshkv/internal/kvstore"
	"github.com/yndnr/meshkv/internal/overlay/gossip"
	"github.com/yndnr/meshkv/internal/overlay/p2p"
	"github.com/yndnr/meshkv/internal/storage"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

// Policy returns the write policy, falling back to the mode default when
// store.write is unset.
func (c *NodeConfig) Policy(mode domain.Mode) domain.AccessPolicy {
	if c.Store.Write != nil {
		return domain.AccessPolicy{Write: c.Store.Write}.Normalized()
	}
	if mode == domain.ModeCreate {
		return domain.OpenWrite()
	}
	return domain.ReadOnly()
}

// ToLifecycleConfig maps the node config onto the controller parameters.
func ToLifecycleConfig(cfg *NodeConfig) (lifecycle.Config, error) {
	mode, err := domain.ParseMode(cfg.Node.Mode)
	if err != nil {
		return lifecycle.Config{}, err
	}
	return lifecycle.Config{
		Mode:                   mode,
		KnownPeers:             cfg.Overlay.KnownPeers,
		MinPeers:               cfg.Gate.MinPeers,
		GatePollInterval:       cfg.Gate.PollInterval,
		GateTimeout:            cfg.Gate.Timeout,
		StoreName:              cfg.Store.Name,
		StoreAddress:           cfg.Store.Address,
		Policy:                 cfg.Policy(mode),
		LoadTimeout:            cfg.Store.LoadTimeout,
		AnnouncePeriod:         cfg.Announce.Period,
		AnnounceAttemptTimeout: cfg.Announce.AttemptTimeout,
		PeerReportInterval:     cfg.Monitor.PeerReportInterval,
		Seed:                   cfg.Store.Seed,
	}, nil
}

// ToStoreOptions maps the store section onto kvstore options.
func ToStoreOptions(cfg *NodeConfig, t kvstore.Transport, log logger.Logger, m *metric.Registry) kvstore.Options {
	badger := storage.DefaultBadgerConfig()
	badger.GCInterval = cfg.Store.GCInterval
	return kvstore.Options{
		Dir:       filepath.Join(cfg.Node.DataDir, "stores"),
		InMemory:  cfg.Store.InMemory,
		Badger:    badger,
		Transport: t,
		SyncRate:  cfg.Store.SyncRate,
		SyncBurst: cfg.Store.SyncBurst,
		Logger:    log,
		Metrics:   m,
	}
}

// ToGossipConfig maps the overlay section onto the memberlist backend.
func ToGossipConfig(cfg *NodeConfig, log logger.Logger, clk clock.Clock) gossip.Config {
	return gossip.Config{
		NodeID:        cfg.Node.ID,
		BindAddr:      cfg.Overlay.BindAddr,
		BindPort:      cfg.Overlay.BindPort,
		AdvertiseAddr: cfg.Overlay.AdvertiseAddr,
		AdvertisePort: cfg.Overlay.AdvertisePort,
		Secret:        cfg.Overlay.Secret,
		Profile:       cfg.Overlay.Profile,
		ProviderTTL:   cfg.Overlay.ProviderTTL,
		Logger:        log,
		Clock:         clk,
	}
}

// ToP2PConfig maps the overlay section onto the libp2p backend. A relative
// key file is resolved under node.data_dir.
func ToP2PConfig(cfg *NodeConfig, log logger.Logger) p2p.Config {
	keyFile := cfg.Overlay.KeyFile
	if keyFile != "" && !filepath.IsAbs(keyFile) {
		keyFile = filepath.Join(cfg.Node.DataDir, keyFile)
	}
	return p2p.Config{
		ListenAddrs: cfg.Overlay.Listen,
		KeyFile:     keyFile,
		DHTServer:   cfg.Overlay.DHTMode == "server",
		Logger:      log,
	}
}
