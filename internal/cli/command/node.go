package command

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/infra/confloader"
	"github.com/yndnr/meshkv/internal/server/config"
	"github.com/yndnr/meshkv/internal/server/node"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// CreateCommand runs a node that originates a store.
func CreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a store and serve it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Store name",
			},
			&cli.StringSliceFlag{
				Name:  "seed",
				Usage: "Entry written once the node is steady, as key=value (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "write",
				Usage: "Node ID allowed to write, or * for everyone (repeatable)",
			},
		},
		Action: runNode(domain.ModeCreate),
	}
}

// JoinCommand runs a node that opens an existing store.
func JoinCommand() *cli.Command {
	return &cli.Command{
		Name:  "join",
		Usage: "Join an existing store once enough peers are connected",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Store address, /meshkv/<cid>/<name>",
			},
			&cli.StringSliceFlag{
				Name:  "peer",
				Usage: "Known peer dialed before waiting for peers (repeatable)",
			},
			&cli.IntFlag{
				Name:  "min-peers",
				Usage: "Peers required before the store is opened",
			},
			&cli.DurationFlag{
				Name:  "gate-timeout",
				Usage: "Give up waiting for peers after this long (0 waits forever)",
			},
		},
		Action: runNode(domain.ModeJoin),
	}
}

func runNode(mode domain.Mode) cli.ActionFunc {
	return func(c *cli.Context) error {
		overrides, err := nodeOverrides(c, mode)
		if err != nil {
			return err
		}
		configFile := c.String("config")
		cfg, err := loadNodeConfig(configFile, overrides)
		if err != nil {
			return err
		}

		log, err := logger.New(logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: os.Stderr,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger.SetDefault(log)
		log.Debug("configuration loaded", "config", config.Sanitize(cfg))

		opts := []node.Option{node.WithLogger(log)}
		if configFile != "" {
			opts = append(opts, node.WithConfigFile(configFile))
		}
		n, err := node.New(c.Context, cfg, opts...)
		if err != nil {
			return err
		}
		return n.Run(c.Context)
	}
}

// nodeOverrides maps the flags that were set onto dotted config keys.
func nodeOverrides(c *cli.Context, mode domain.Mode) (map[string]any, error) {
	flags := map[string]any{"node.mode": string(mode)}

	stringFlags := map[string]string{
		"log-level": "log.level",
		"data-dir":  "node.data_dir",
		"backend":   "overlay.backend",
		"http-addr": "http.addr",
		"name":      "store.name",
		"address":   "store.address",
	}
	for flag, key := range stringFlags {
		if c.IsSet(flag) {
			flags[key] = c.String(flag)
		}
	}

	sliceFlags := map[string]string{
		"bootstrap": "overlay.bootstrap",
		"peer":      "overlay.known_peers",
		"write":     "store.write",
	}
	for flag, key := range sliceFlags {
		if c.IsSet(flag) {
			flags[key] = c.StringSlice(flag)
		}
	}

	if c.IsSet("in-memory") {
		flags["store.in_memory"] = c.Bool("in-memory")
	}
	if c.IsSet("min-peers") {
		flags["gate.min_peers"] = c.Int("min-peers")
	}
	if c.IsSet("gate-timeout") {
		flags["gate.timeout"] = c.Duration("gate-timeout")
	}
	if c.IsSet("seed") {
		seed, err := parseSeed(c.StringSlice("seed"))
		if err != nil {
			return nil, err
		}
		flags["store.seed"] = seed
	}
	return flags, nil
}

// parseSeed parses repeated key=value flags. The value may contain '='.
func parseSeed(pairs []string) (map[string]any, error) {
	seed := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --seed %q: want key=value", p)
		}
		seed[strings.TrimSpace(k)] = v
	}
	return seed, nil
}

// loadNodeConfig layers file, environment and flag overrides over the
// defaults and verifies the result.
func loadNodeConfig(configFile string, overrides map[string]any) (*config.NodeConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithFlags(overrides), confloader.WithStrict()}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
