// Package gossip implements the node overlay on hashicorp/memberlist.
//
// Membership and failure detection come from memberlist's SWIM gossip.
// On top of it the overlay adds:
//
//   - provider records: Announce stores a TTL-bound record and gossips it
//     through a TransmitLimitedQueue; push/pull sync ships the whole table
//   - a topic transport: Broadcast and Send use reliable (TCP) user
//     messages wrapped in a small JSON frame
//   - optional encryption keyed from a passphrase via HKDF-SHA256
//
// memberlist logs through an hclog adapter that maps its "[LEVEL]"
// prefixes onto the node logger.
package gossip
