package lifecycle

import (
	"strings"
	"time"

	"github.com/yndnr/meshkv/internal/core/domain"
)

// Config holds the controller parameters. It is built from the node
// configuration by the caller; the controller never reads files or flags.
type Config struct {
	Mode domain.Mode

	// KnownPeers are dialed directly during Connecting (join mode).
	KnownPeers []string

	MinPeers         int
	GatePollInterval time.Duration
	GateTimeout      time.Duration

	// StoreName names a store created in create mode.
	StoreName string

	// StoreAddress is the store a join-mode node opens.
	StoreAddress string

	Policy domain.AccessPolicy

	// LoadTimeout bounds Store.Load. Zero means no bound.
	LoadTimeout time.Duration

	AnnouncePeriod         time.Duration
	AnnounceAttemptTimeout time.Duration

	PeerReportInterval time.Duration

	// Seed entries are written once the node is steady (create mode).
	Seed map[string]string
}

// Validate checks the parameters the mode requires.
func (c Config) Validate() error {
	switch c.Mode {
	case domain.ModeCreate:
		if strings.TrimSpace(c.StoreName) == "" {
			return domain.ErrInvalidConfig.WithDetails("create mode requires a store name")
		}
	case domain.ModeJoin:
		if strings.TrimSpace(c.StoreAddress) == "" {
			return domain.ErrInvalidConfig.WithDetails("join mode requires a store address")
		}
		if c.MinPeers < 0 {
			return domain.ErrInvalidConfig.WithDetails("min peers must not be negative")
		}
	default:
		return domain.ErrInvalidConfig.WithDetails("unknown mode " + string(c.Mode))
	}
	if c.GateTimeout < 0 || c.AnnouncePeriod < 0 || c.PeerReportInterval < 0 {
		return domain.ErrInvalidConfig.WithDetails("intervals must not be negative")
	}
	return nil
}
