// Package kvstore implements a replicated last-writer-wins key-value store.
//
// A store is identified by its manifest (name, type and write policy).
// The manifest's CID is the store root and the content address the node
// announces; the full address is /meshkv/<root>/<name>.
//
// Every write is an Entry stamped with a Lamport clock and the author's
// node ID. Replicas keep the newest entry per key, ordered by (clock,
// author, id), so they converge regardless of delivery order. Entries are
// persisted in a per-store Badger database.
//
// Replication rides a Transport supplied by the overlay:
//
//   - op: one entry, broadcast after each local write
//   - sync-req: broadcast after Load
//   - sync-resp: zstd-compressed manifest and full entry set, sent to the
//     requester and rate limited
//
// Duplicate messages are dropped by an LRU of murmur3 fingerprints.
package kvstore
