// Package node assembles a running meshkv node from its configuration:
// overlay backend, store manager, lifecycle controller, HTTP API and
// config watcher, torn down in reverse order by a shutdown handler.
package node
