// Package connection is the HTTP client the meshkv-node client commands
// use to talk to a running node's API.
package connection
