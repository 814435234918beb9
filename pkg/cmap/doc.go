// Package cmap provides a sharded concurrent map keyed by string.
//
// Keys are distributed over shards by murmur3 hash; each shard has its own
// RWMutex. Apply gives read-modify-write under the shard lock, which is
// what last-writer-wins merging needs.
//
//	m := cmap.New[Entry]()
//	m.Apply("key", func(cur Entry, ok bool) (Entry, bool) { ... })
package cmap
