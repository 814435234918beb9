package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

const protocolPrefix = "/meshkv"

// Config configures the libp2p overlay.
type Config struct {
	// ListenAddrs are multiaddrs to listen on, e.g. /ip4/0.0.0.0/tcp/4001.
	ListenAddrs []string

	// KeyFile persists the node key. Empty means a new identity per run.
	KeyFile string

	// DHTServer forces DHT server mode. Otherwise the DHT switches mode
	// based on observed reachability.
	DHTServer bool

	// ConnLow and ConnHigh are the connection manager watermarks.
	ConnLow  int
	ConnHigh int

	Logger logger.Logger
}

// Overlay is a libp2p host with a DHT and GossipSub.
type Overlay struct {
	host   host.Host
	dht    *dht.IpfsDHT
	pubsub *pubsub.PubSub
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	psubs  map[string]*pubsub.Subscription
	subs   map[string]func(from string, msg []byte)

	closeOnce sync.Once
}

// New starts the host, the DHT and GossipSub. It does not dial anyone.
func New(ctx context.Context, cfg Config) (*Overlay, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.ConnLow <= 0 {
		cfg.ConnLow = 32
	}
	if cfg.ConnHigh < cfg.ConnLow {
		cfg.ConnHigh = cfg.ConnLow * 4
	}
	log := cfg.Logger.With("component", "p2p")

	priv, created, err := LoadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	listen := make([]multiaddr.Multiaddr, 0, len(cfg.ListenAddrs))
	for _, s := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return nil, domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("listen address %q", s)).WithCause(err)
		}
		listen = append(listen, ma)
	}

	cm, err := connmgr.NewConnManager(cfg.ConnLow, cfg.ConnHigh)
	if err != nil {
		return nil, fmt.Errorf("create connection manager: %w", err)
	}

	mode := dht.ModeAutoServer
	if cfg.DHTServer {
		mode = dht.ModeServer
	}

	octx, cancel := context.WithCancel(ctx)
	var kad *dht.IpfsDHT
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrs(listen...),
		libp2p.ConnectionManager(cm),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			var err error
			kad, err = dht.New(octx, h, dht.Mode(mode), dht.ProtocolPrefix(protocolPrefix))
			return kad, err
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(octx, h)
	if err != nil {
		cancel()
		return nil, multierr.Append(fmt.Errorf("create gossipsub: %w", err), h.Close())
	}

	o := &Overlay{
		host:   h,
		dht:    kad,
		pubsub: ps,
		logger: log,
		ctx:    octx,
		cancel: cancel,
		topics: make(map[string]*pubsub.Topic),
		psubs:  make(map[string]*pubsub.Subscription),
		subs:   make(map[string]func(string, []byte)),
	}
	h.SetStreamHandler(directProtocol, o.handleStream)

	if err := kad.Bootstrap(octx); err != nil {
		_ = o.Close()
		return nil, fmt.Errorf("bootstrap dht: %w", err)
	}

	log.Info("p2p overlay started",
		"node_id", h.ID().String(),
		"addrs", o.Identity().Addrs,
		"new_key", created)
	return o, nil
}

// Identity returns the peer ID and full p2p multiaddrs.
func (o *Overlay) Identity() domain.NodeIdentity {
	info := peer.AddrInfo{ID: o.host.ID(), Addrs: o.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	out := make([]string, 0, len(addrs))
	if err == nil {
		for _, a := range addrs {
			out = append(out, a.String())
		}
	}
	return domain.NodeIdentity{ID: o.host.ID().String(), Addrs: out}
}

// Connect dials a peer given a multiaddr carrying a /p2p/ component.
func (o *Overlay) Connect(ctx context.Context, addr string) error {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return domain.ErrConnectFailed.WithDetails(addr).WithCause(err)
	}
	if err := o.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connect %s: %w", info.ID, err)
	}
	o.host.ConnManager().Protect(info.ID, "known-peer")
	o.logger.Info("connected to peer", "peer", info.ID.String())
	return nil
}

// Peers returns the peers with an open connection.
func (o *Overlay) Peers(ctx context.Context) (domain.PeerSet, error) {
	conns := o.host.Network().Peers()
	ids := make([]string, 0, len(conns))
	for _, p := range conns {
		ids = append(ids, p.String())
	}
	return domain.NewPeerSet(ids), nil
}

// Announce provides addr on the DHT. An empty routing table fails fast
// with domain.ErrNoRoutingPeers.
func (o *Overlay) Announce(ctx context.Context, addr domain.ContentAddress) error {
	c, err := addr.CID()
	if err != nil {
		return err
	}
	if o.dht.RoutingTable().Size() == 0 {
		return domain.ErrNoRoutingPeers
	}
	if err := o.dht.Provide(ctx, c, true); err != nil {
		return fmt.Errorf("provide %s: %w", c, err)
	}
	return nil
}

// FindProviders looks up at most limit providers of addr on the DHT.
func (o *Overlay) FindProviders(ctx context.Context, addr domain.ContentAddress, limit int) ([]peer.AddrInfo, error) {
	c, err := addr.CID()
	if err != nil {
		return nil, err
	}
	var out []peer.AddrInfo
	for info := range o.dht.FindProvidersAsync(ctx, c, limit) {
		out = append(out, info)
	}
	return out, nil
}

// Close stops subscriptions and shuts down GossipSub, the DHT and the host.
func (o *Overlay) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.cancel()

		o.mu.Lock()
		for _, sub := range o.psubs {
			sub.Cancel()
		}
		o.psubs = nil
		for name, t := range o.topics {
			// Cancelled subscriptions drain asynchronously, so Close may
			// still see them.
			if terr := t.Close(); terr != nil {
				o.logger.Debug("close topic failed", "topic", name, "error", terr)
			}
		}
		o.topics = nil
		o.mu.Unlock()
		o.wg.Wait()

		err = multierr.Append(err, o.dht.Close())
		err = multierr.Append(err, o.host.Close())
		o.logger.Info("p2p overlay stopped")
	})
	return err
}
