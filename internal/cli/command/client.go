package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshkv/internal/cli/connection"
	"github.com/yndnr/meshkv/internal/cli/output"
	"github.com/yndnr/meshkv/internal/infra/tlsroots"
)

const requestTimeout = 30 * time.Second

// clientFlags select the node to talk to and how to print the result.
func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Node HTTP address",
			EnvVars: []string{"MESHKV_SERVER"},
			Value:   "127.0.0.1:5180",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "CA bundle trusted for HTTPS, in addition to the system roots",
			EnvVars: []string{"MESHKV_CA_FILE"},
		},
		&cli.StringFlag{
			Name:    "cert-file",
			Usage:   "Client certificate for nodes that require one",
			EnvVars: []string{"MESHKV_CERT_FILE"},
		},
		&cli.StringFlag{
			Name:    "key-file",
			Usage:   "Client certificate key",
			EnvVars: []string{"MESHKV_KEY_FILE"},
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "Use HTTPS (implied by --ca-file and --cert-file)",
		},
	}
}

// StatusCommand prints a running node's status.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the status of a running node",
		Flags: clientFlags(),
		Action: func(c *cli.Context) error {
			return withClient(c, func(ctx context.Context, client *connection.HTTPClient, out output.Formatter) error {
				st, err := client.Status(ctx)
				if err != nil {
					return err
				}
				return out.Format(c.App.Writer, st)
			})
		},
	}
}

// KVCommand reads and writes keys on a running node.
func KVCommand() *cli.Command {
	return &cli.Command{
		Name:  "kv",
		Usage: "Read and write keys on a running node",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List every visible key",
				Flags: clientFlags(),
				Action: func(c *cli.Context) error {
					return withClient(c, func(ctx context.Context, client *connection.HTTPClient, out output.Formatter) error {
						entries, err := client.List(ctx)
						if err != nil {
							return err
						}
						return out.Format(c.App.Writer, entries)
					})
				},
			},
			{
				Name:      "get",
				Usage:     "Print the value of a key",
				ArgsUsage: "KEY",
				Flags:     clientFlags(),
				Action: func(c *cli.Context) error {
					key, err := requireArgs(c, 1)
					if err != nil {
						return err
					}
					return withClient(c, func(ctx context.Context, client *connection.HTTPClient, out output.Formatter) error {
						value, err := client.Get(ctx, key[0])
						if err != nil {
							return err
						}
						return out.Format(c.App.Writer, map[string]string{key[0]: value})
					})
				},
			},
			{
				Name:      "put",
				Usage:     "Write a key",
				ArgsUsage: "KEY VALUE",
				Flags:     clientFlags(),
				Action: func(c *cli.Context) error {
					args, err := requireArgs(c, 2)
					if err != nil {
						return err
					}
					return withClient(c, func(ctx context.Context, client *connection.HTTPClient, _ output.Formatter) error {
						return client.Put(ctx, args[0], args[1])
					})
				},
			},
			{
				Name:      "delete",
				Aliases:   []string{"del"},
				Usage:     "Delete a key",
				ArgsUsage: "KEY",
				Flags:     clientFlags(),
				Action: func(c *cli.Context) error {
					key, err := requireArgs(c, 1)
					if err != nil {
						return err
					}
					return withClient(c, func(ctx context.Context, client *connection.HTTPClient, _ output.Formatter) error {
						return client.Delete(ctx, key[0])
					})
				},
			},
		},
	}
}

func withClient(c *cli.Context, fn func(context.Context, *connection.HTTPClient, output.Formatter) error) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	var opts []connection.ClientOption
	if c.Bool("tls") || c.String("ca-file") != "" || c.String("cert-file") != "" {
		tlsCfg, err := tlsroots.ClientConfig(c.String("ca-file"), c.String("cert-file"), c.String("key-file"))
		if err != nil {
			return err
		}
		opts = append(opts, connection.WithTLSConfig(tlsCfg))
	}

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()
	return fn(ctx, connection.NewHTTPClient(c.String("server"), opts...), output.NewFormatter(format))
}

func requireArgs(c *cli.Context, n int) ([]string, error) {
	if c.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", c.Command.Name, n, c.NArg())
	}
	return c.Args().Slice(), nil
}
