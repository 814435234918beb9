package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshkv/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "meshkv-node",
		Usage:   "Replicated key-value store node over a peer-to-peer overlay",
		Version: buildinfo.Get().Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			CreateCommand(),
			JoinCommand(),
			StatusCommand(),
			KVCommand(),
			VersionCommand(),
		},
		HideVersion:               true,
		DisableSliceFlagSeparator: true,
	}
}

// globalFlags are node options shared by create and join. Each one is
// layered over the config file and environment only when set.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			EnvVars: []string{"MESHKV_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Directory for stores and the overlay key",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Overlay backend: gossip or p2p",
		},
		&cli.StringSliceFlag{
			Name:  "bootstrap",
			Usage: "Overlay address to dial at startup (repeatable)",
		},
		&cli.StringFlag{
			Name:  "http-addr",
			Usage: "Listen address of the HTTP API",
		},
		&cli.BoolFlag{
			Name:  "in-memory",
			Usage: "Keep stores in memory only",
		},
	}
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
