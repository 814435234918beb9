// Package gate implements the peer readiness gate.
//
// A join-mode node must not open the shared store until the overlay has
// enough peers to replicate from. Gate polls the overlay's peer list on a
// fixed ticker and returns as soon as one poll reaches the minimum.
//
// Outcomes:
//   - nil: a poll observed at least MinPeers peers
//   - domain.ErrGateTimeout: Timeout elapsed first (opt-in)
//   - domain.ErrGateCancelled: the context was cancelled, wraps ctx.Err()
package gate
