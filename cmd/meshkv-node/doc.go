// Package main provides the entry point for meshkv-node.
//
// meshkv-node runs one node of a replicated key-value store over a
// peer-to-peer overlay, and doubles as a client for a running node's
// HTTP API.
//
// Usage:
//
//	meshkv-node [global flags] create --name NAME [--seed k=v ...]
//	meshkv-node [global flags] join --address /meshkv/<cid>/<name> [--peer ADDR ...]
//	meshkv-node status --server 127.0.0.1:5180
//	meshkv-node kv get|put|delete|list ...
package main
