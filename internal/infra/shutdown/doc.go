// Package shutdown provides graceful shutdown handling.
//
// Handler.Context ties the node's root context to SIGINT/SIGTERM; once
// the node has stopped, Handler.Shutdown closes the remaining resources
// (HTTP server, store manager, overlay) in reverse order of registration.
package shutdown
