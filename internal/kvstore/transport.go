package kvstore

import "context"

// Transport carries replication messages between nodes.
// The overlay backends implement it.
type Transport interface {
	// LocalID is this node's overlay identity.
	LocalID() string

	// Broadcast delivers msg to every other subscriber of topic.
	Broadcast(ctx context.Context, topic string, msg []byte) error

	// Send delivers msg to a single peer.
	Send(ctx context.Context, to, topic string, msg []byte) error

	// Subscribe registers fn for messages on topic. The returned function
	// removes the subscription.
	Subscribe(topic string, fn func(from string, msg []byte)) (unsubscribe func())
}
