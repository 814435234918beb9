package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/meshkv/internal/infra/buildinfo"
)

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintln(c.App.Writer, buildinfo.String())
			return err
		},
	}
}
