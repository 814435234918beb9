// Package command defines the meshkv-node command line with urfave/cli/v2.
//
// create and join run a node in the foreground; status and kv talk to a
// running node over its HTTP API.
package command
