package gossip

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/memberlist"
	"github.com/oklog/ulid/v2"
	"go.uber.org/multierr"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

const (
	// DefaultProviderTTL is how long an announce stays valid.
	DefaultProviderTTL = 5 * time.Minute

	defaultCleanupInterval = 30 * time.Second
	leaveTimeout           = 2 * time.Second
)

// Config configures the gossip overlay.
type Config struct {
	// NodeID is the memberlist node name. Generated when empty.
	NodeID string

	// BindAddr and BindPort are the gossip listen address. Port 0 picks
	// a free port.
	BindAddr string
	BindPort int

	// AdvertiseAddr and AdvertisePort override the address peers dial.
	AdvertiseAddr string
	AdvertisePort int

	// Secret is a shared passphrase. When set, gossip is encrypted with a
	// key derived by DeriveKey.
	Secret string

	// Profile selects memberlist timing defaults: "lan", "wan" or "local".
	Profile string

	ProviderTTL     time.Duration
	CleanupInterval time.Duration

	Logger logger.Logger
	Clock  clock.Clock
}

// Overlay is a memberlist-backed overlay client. It provides membership,
// gossiped provider records and the message transport used by kvstore.
type Overlay struct {
	cfg       Config
	ml        *memberlist.Memberlist
	queue     *memberlist.TransmitLimitedQueue
	providers *ProviderTable
	logger    logger.Logger
	clock     clock.Clock

	subsMu sync.RWMutex
	subs   map[string]func(from string, msg []byte)

	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates the memberlist and starts listening. It does not join
// anyone; call Connect for that.
func New(cfg Config) (*Overlay, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.ProviderTTL <= 0 {
		cfg.ProviderTTL = DefaultProviderTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "node-" + strings.ToLower(ulid.Make().String())
	}

	mlConfig, err := memberlistConfig(cfg.Profile)
	if err != nil {
		return nil, err
	}
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertiseAddr = cfg.AdvertiseAddr
	mlConfig.AdvertisePort = cfg.AdvertisePort

	key, err := DeriveKey(cfg.Secret)
	if err != nil {
		return nil, err
	}
	mlConfig.SecretKey = key

	log := cfg.Logger.With("component", "gossip")
	mlConfig.Logger = logger.NewHCLogger(logger.Slog(log), "memberlist").
		StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})

	o := &Overlay{
		cfg:       cfg,
		providers: NewProviderTable(cfg.Clock),
		logger:    log,
		clock:     cfg.Clock,
		subs:      make(map[string]func(string, []byte)),
		stopCh:    make(chan struct{}),
	}
	o.queue = &memberlist.TransmitLimitedQueue{
		NumNodes: func() int {
			if o.ml == nil {
				return 1
			}
			return o.ml.NumMembers()
		},
		RetransmitMult: mlConfig.RetransmitMult,
	}
	mlConfig.Delegate = &delegate{overlay: o}
	mlConfig.Events = &eventDelegate{overlay: o}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	o.ml = ml

	o.wg.Add(1)
	go o.cleanupLoop()

	local := ml.LocalNode()
	log.Info("gossip overlay started",
		"node_id", local.Name,
		"addr", local.Address(),
		"encrypted", key != nil)
	return o, nil
}

func memberlistConfig(profile string) (*memberlist.Config, error) {
	switch strings.ToLower(profile) {
	case "", "lan":
		return memberlist.DefaultLANConfig(), nil
	case "wan":
		return memberlist.DefaultWANConfig(), nil
	case "local":
		return memberlist.DefaultLocalConfig(), nil
	default:
		return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("unknown gossip profile %q", profile))
	}
}

// Identity returns the local node name and its advertised address.
func (o *Overlay) Identity() domain.NodeIdentity {
	local := o.ml.LocalNode()
	return domain.NodeIdentity{ID: local.Name, Addrs: []string{local.Address()}}
}

// Connect joins the cluster through addr ("host:port").
func (o *Overlay) Connect(ctx context.Context, addr string) error {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := o.ml.Join([]string{addr})
		ch <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("join %s: %w", addr, r.err)
		}
		o.logger.Info("joined cluster", "peer", addr, "contacted", r.n)
		return nil
	}
}

// Peers returns the live members other than this node.
func (o *Overlay) Peers(ctx context.Context) (domain.PeerSet, error) {
	return domain.NewPeerSet(o.peerNames()), nil
}

func (o *Overlay) peerNames() []string {
	self := o.ml.LocalNode().Name
	members := o.ml.Members()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.Name != self {
			ids = append(ids, m.Name)
		}
	}
	return ids
}

// Announce records this node as a provider of addr and gossips the
// record. With no other members there is nobody to tell, which is
// reported as domain.ErrNoRoutingPeers.
func (o *Overlay) Announce(ctx context.Context, addr domain.ContentAddress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.ml.NumMembers() < 2 {
		return domain.ErrNoRoutingPeers
	}
	id := o.Identity()
	rec := o.providers.Add(addr.String(), id.ID, id.Addrs, o.cfg.ProviderTTL)
	if err := o.queueProvider(rec); err != nil {
		return err
	}
	o.logger.Debug("provider record queued", "content_address", addr.String(), "expires_at", rec.ExpiresAt)
	return nil
}

// FindProviders returns the known, unexpired providers of addr.
func (o *Overlay) FindProviders(addr domain.ContentAddress) []ProviderRecord {
	return o.providers.Get(addr.String())
}

// Close leaves the cluster and shuts memberlist down.
func (o *Overlay) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.stopCh)
		o.wg.Wait()

		if lerr := o.ml.Leave(leaveTimeout); lerr != nil {
			err = multierr.Append(err, fmt.Errorf("leave: %w", lerr))
		}
		if serr := o.ml.Shutdown(); serr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown memberlist: %w", serr))
		}
		o.logger.Info("gossip overlay stopped")
	})
	return err
}

func (o *Overlay) cleanupLoop() {
	defer o.wg.Done()
	ticker := o.clock.Ticker(o.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			if n := o.providers.CleanupExpired(); n > 0 {
				o.logger.Debug("expired provider records removed", "count", n)
			}
		}
	}
}
