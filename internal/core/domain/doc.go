// Package domain defines the core domain models for meshkv.
//
// Domain models are plain values without IO dependencies:
//
//   - NodeIdentity, PeerSet: what the overlay reports about this node and its peers
//   - ContentAddress: the CID a node announces to the routing layer
//   - AccessPolicy, Mode: how a node attaches to the replicated store
//   - Snapshot: a full copy of the store's visible state
//   - Errors: the error taxonomy (fatal vs. recoverable)
package domain
