package node

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/core/lifecycle"
	"github.com/yndnr/meshkv/internal/infra/buildinfo"
	"github.com/yndnr/meshkv/internal/infra/shutdown"
	"github.com/yndnr/meshkv/internal/infra/tlsroots"
	"github.com/yndnr/meshkv/internal/kvstore"
	"github.com/yndnr/meshkv/internal/overlay/gossip"
	"github.com/yndnr/meshkv/internal/overlay/p2p"
	"github.com/yndnr/meshkv/internal/server/config"
	"github.com/yndnr/meshkv/internal/server/httpserver"
	"github.com/yndnr/meshkv/internal/server/httpserver/handler"
	"github.com/yndnr/meshkv/internal/server/redisserver"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
	"github.com/yndnr/meshkv/internal/telemetry/metric"
)

// Overlay is what the node needs from an overlay backend.
type Overlay interface {
	lifecycle.Overlay
	kvstore.Transport
	Close() error
}

// Node is one assembled meshkv process.
type Node struct {
	cfg        *config.NodeConfig
	configFile string
	logger     logger.Logger
	metrics    *metric.Registry
	shutdown   *shutdown.Handler

	overlay    Overlay
	stores     *kvstore.Manager
	controller *lifecycle.Controller
	http       *httpserver.Server
	redis      *redisserver.Server
}

// Option configures a Node.
type Option func(*Node)

// WithConfigFile enables live reload of log.level from path.
func WithConfigFile(path string) Option {
	return func(n *Node) {
		n.configFile = path
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Node) {
		n.logger = l
	}
}

// New builds every component and starts the overlay and HTTP listener.
// The lifecycle itself starts in Run. On error, whatever was already
// started is shut down.
func New(ctx context.Context, cfg *config.NodeConfig, opts ...Option) (*Node, error) {
	n := &Node{
		cfg:     cfg,
		logger:  logger.Default(),
		metrics: metric.NewRegistry(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.shutdown = shutdown.NewHandler(shutdown.DefaultTimeout, shutdown.WithLogger(n.logger))

	if err := n.build(ctx); err != nil {
		return nil, multierr.Append(err, n.shutdown.Shutdown())
	}
	return n, nil
}

func (n *Node) build(ctx context.Context) error {
	ov, err := newOverlay(ctx, n.cfg, n.logger)
	if err != nil {
		return fmt.Errorf("start overlay: %w", err)
	}
	n.overlay = ov
	n.shutdown.OnShutdown("overlay", func(context.Context) error { return ov.Close() })

	stores, err := kvstore.NewManager(config.ToStoreOptions(n.cfg, ov, n.logger, n.metrics))
	if err != nil {
		return fmt.Errorf("store manager: %w", err)
	}
	n.stores = stores
	n.shutdown.OnShutdown("stores", func(context.Context) error { return stores.Close() })

	lcCfg, err := config.ToLifecycleConfig(n.cfg)
	if err != nil {
		return err
	}
	ctl, err := lifecycle.New(lcCfg, ov, storeOpener{stores},
		lifecycle.WithLogger(n.logger),
		lifecycle.WithMetrics(n.metrics))
	if err != nil {
		return err
	}
	n.controller = ctl
	if err := metric.NewInfoCollector(ctl).Register(n.metrics); err != nil {
		return fmt.Errorf("register info collector: %w", err)
	}

	var tlsCfg *tls.Config
	if n.cfg.TLS.Enabled() {
		if tlsCfg, err = n.serverTLS(); err != nil {
			return fmt.Errorf("tls: %w", err)
		}
	}

	if n.cfg.HTTP.Addr != "" {
		api := handler.New(ctl, attachedKV[handler.KV](ctl), buildinfo.Get().Version, n.logger)
		router := httpserver.NewRouter(httpserver.RouterConfig{
			API:       api,
			Metrics:   n.metrics.Handler(),
			Logger:    n.logger,
			RateLimit: httpserver.DefaultRateLimit,
		})
		n.http = httpserver.New(n.cfg.HTTP.Addr, router, n.logger, httpserver.WithTLSConfig(tlsCfg))
		if err := n.http.Start(); err != nil {
			return err
		}
		n.shutdown.OnShutdown("http", n.http.Shutdown)
	}

	if n.cfg.Redis.Addr != "" {
		cmds := redisserver.NewCommandHandler(ctl, attachedKV[redisserver.KV](ctl), buildinfo.Get().Version, n.logger)
		n.redis = redisserver.New(redisserver.Config{
			Addr:        n.cfg.Redis.Addr,
			IdleTimeout: n.cfg.Redis.IdleTimeout,
			RateLimit:   n.cfg.Redis.RateLimit,
			TLSConfig:   tlsCfg,
		}, cmds, n.logger)
		if err := n.redis.Start(); err != nil {
			return err
		}
		n.shutdown.OnShutdown("redis", n.redis.Shutdown)
	}

	if n.configFile != "" {
		w, err := watchLogLevel(n.configFile, n.logger)
		if err != nil {
			n.logger.Warn("config watcher disabled", "path", n.configFile, "error", err)
		} else {
			n.shutdown.OnShutdown("config-watcher", func(context.Context) error { return w.Stop() })
		}
	}
	return nil
}

// serverTLS loads the listener key pair and follows changes to it until
// shutdown.
func (n *Node) serverTLS() (*tls.Config, error) {
	certs, err := tlsroots.NewReloader(n.cfg.TLS.CertFile, n.cfg.TLS.KeyFile, tlsroots.WithLogger(n.logger))
	if err != nil {
		return nil, err
	}
	if err := certs.Start(); err != nil {
		return nil, err
	}
	n.shutdown.OnShutdown("tls", func(context.Context) error { return certs.Stop() })

	var clientCAs *x509.CertPool
	if n.cfg.TLS.ClientCAFile != "" {
		if clientCAs, err = tlsroots.LoadCAFile(n.cfg.TLS.ClientCAFile); err != nil {
			return nil, err
		}
	}
	return tlsroots.ServerConfig(certs, clientCAs), nil
}

// Run dials the bootstrap peers, drives the lifecycle until ctx is
// cancelled or a shutdown signal arrives, then shuts every component down.
func (n *Node) Run(ctx context.Context) error {
	ctx, stop := n.shutdown.Context(ctx)
	defer stop()

	id := n.overlay.Identity()
	n.logger.Info("meshkv node starting",
		"version", buildinfo.Get().Version,
		"node_id", id.ID,
		"addrs", id.Addrs,
		"mode", n.cfg.Node.Mode,
		"backend", n.cfg.Overlay.Backend)

	dialBootstrap(ctx, n.overlay, n.cfg.Overlay.Bootstrap, n.logger)

	runErr := n.controller.Run(ctx)
	if runErr != nil {
		n.logger.Error("node failed", "state", n.controller.State().String(), "error", runErr)
	}
	if err := n.shutdown.Shutdown(); err != nil {
		runErr = multierr.Append(runErr, err)
	}
	n.logger.Info("meshkv node stopped")
	return runErr
}

// Stop triggers the same shutdown path as a signal.
func (n *Node) Stop() {
	n.shutdown.Trigger()
}

// Controller returns the lifecycle controller.
func (n *Node) Controller() *lifecycle.Controller {
	return n.controller
}

// Identity returns the overlay identity.
func (n *Node) Identity() domain.NodeIdentity {
	return n.overlay.Identity()
}

// HTTPAddr returns the bound API address, or "" when the API is disabled.
func (n *Node) HTTPAddr() string {
	if n.http == nil {
		return ""
	}
	return n.http.Addr()
}

// RedisAddr returns the bound RESP address, or "" when it is disabled.
func (n *Node) RedisAddr() string {
	if n.redis == nil {
		return ""
	}
	return n.redis.Addr()
}

// newOverlay starts the configured backend.
func newOverlay(ctx context.Context, cfg *config.NodeConfig, log logger.Logger) (Overlay, error) {
	switch cfg.Overlay.Backend {
	case config.BackendP2P:
		o, err := p2p.New(ctx, config.ToP2PConfig(cfg, log))
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		o, err := gossip.New(config.ToGossipConfig(cfg, log, clock.New()))
		if err != nil {
			return nil, err
		}
		return o, nil
	}
}
