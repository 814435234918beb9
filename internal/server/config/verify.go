package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/kvstore"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// Verify validates the configuration. It creates node.data_dir when the
// store is persistent.
func Verify(cfg *NodeConfig) error {
	mode, err := domain.ParseMode(cfg.Node.Mode)
	if err != nil {
		return err
	}
	if err := verifyOverlay(&cfg.Overlay); err != nil {
		return err
	}
	if err := verifyStore(&cfg.Store, mode); err != nil {
		return err
	}
	if err := verifyTimings(cfg); err != nil {
		return err
	}
	if cfg.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
			return invalid("http.addr %q: %v", cfg.HTTP.Addr, err)
		}
	}
	if cfg.Redis.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Redis.Addr); err != nil {
			return invalid("redis.addr %q: %v", cfg.Redis.Addr, err)
		}
	}
	if cfg.Redis.RateLimit < 0 {
		return invalid("redis.rate_limit must be >= 0")
	}
	if err := verifyTLS(&cfg.TLS); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	if err := logger.ValidateFormat(cfg.Log.Format); err != nil {
		return invalid("log.format: %v", err)
	}
	if !cfg.Store.InMemory {
		if cfg.Node.DataDir == "" {
			return invalid("node.data_dir is required")
		}
		if err := os.MkdirAll(cfg.Node.DataDir, 0o750); err != nil {
			return invalid("cannot create data directory: %v", err)
		}
	}
	return nil
}

func verifyOverlay(o *OverlaySection) error {
	switch o.Backend {
	case BackendGossip:
		if o.BindPort < 0 || o.BindPort > 65535 {
			return invalid("overlay.bind_port %d out of range", o.BindPort)
		}
		switch strings.ToLower(o.Profile) {
		case "", "lan", "wan", "local":
		default:
			return invalid("overlay.profile %q must be lan, wan or local", o.Profile)
		}
	case BackendP2P:
		if len(o.Listen) == 0 {
			return invalid("overlay.listen is required for the p2p backend")
		}
		switch o.DHTMode {
		case "", "auto", "server":
		default:
			return invalid("overlay.dht_mode %q must be auto or server", o.DHTMode)
		}
	default:
		return invalid("overlay.backend %q must be %s or %s", o.Backend, BackendGossip, BackendP2P)
	}
	return nil
}

func verifyStore(s *StoreSection, mode domain.Mode) error {
	switch mode {
	case domain.ModeCreate:
		if strings.TrimSpace(s.Name) == "" {
			return invalid("store.name is required in create mode")
		}
	case domain.ModeJoin:
		if !kvstore.IsValidAddress(s.Address) {
			return invalid("store.address %q is not a valid store address", s.Address)
		}
	}
	if s.SyncRate < 0 || s.SyncBurst < 0 {
		return invalid("store.sync_rate and store.sync_burst must not be negative")
	}
	return nil
}

func verifyTimings(cfg *NodeConfig) error {
	if cfg.Gate.MinPeers < 0 {
		return invalid("gate.min_peers must not be negative")
	}
	if cfg.Gate.PollInterval <= 0 {
		return invalid("gate.poll_interval must be positive")
	}
	if cfg.Gate.Timeout < 0 {
		return invalid("gate.timeout must not be negative")
	}
	if cfg.Announce.Period <= 0 {
		return invalid("announce.period must be positive")
	}
	if cfg.Announce.AttemptTimeout < 0 {
		return invalid("announce.attempt_timeout must not be negative")
	}
	if cfg.Monitor.PeerReportInterval <= 0 {
		return invalid("monitor.peer_report_interval must be positive")
	}
	if cfg.Store.LoadTimeout < 0 {
		return invalid("store.load_timeout must not be negative")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return domain.ErrInvalidConfig.WithDetails(fmt.Sprintf(format, args...))
}

func verifyTLS(t *TLSSection) error {
	if (t.CertFile == "") != (t.KeyFile == "") {
		return invalid("tls.cert_file and tls.key_file must be set together")
	}
	if t.ClientCAFile != "" && t.CertFile == "" {
		return invalid("tls.client_ca_file requires tls.cert_file")
	}
	for _, path := range []string{t.CertFile, t.KeyFile, t.ClientCAFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return invalid("tls file: %v", err)
		}
	}
	return nil
}
