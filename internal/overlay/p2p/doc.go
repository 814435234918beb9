// Package p2p implements the node overlay on libp2p.
//
// Identity is an Ed25519 key, optionally persisted to disk. Provider
// records go to a Kademlia DHT under the /meshkv protocol prefix. Store
// replication travels over GossipSub topics for broadcasts and a direct
// stream protocol for point-to-point replies.
package p2p
