// Package storage provides the embedded key-value engine used by the
// replicated store.
//
// BadgerEngine wraps Badger v3. It runs value log GC in the background and
// can publish LSM and value log sizes as Prometheus gauges. An in-memory
// mode backs tests and ephemeral nodes.
package storage
