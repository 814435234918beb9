package lifecycle

import (
	"context"

	"github.com/yndnr/meshkv/internal/core/domain"
)

// Overlay is the node's view of the peer-to-peer network.
type Overlay interface {
	// Identity returns this node's identity. Called once at startup.
	Identity() domain.NodeIdentity

	// Connect dials a known peer. Failures are not fatal.
	Connect(ctx context.Context, addr string) error

	// Peers returns a fresh snapshot of connected peers.
	Peers(ctx context.Context) (domain.PeerSet, error)

	// Announce publishes a provider record for addr.
	Announce(ctx context.Context, addr domain.ContentAddress) error
}

// Store is an attached replicated key-value store.
type Store interface {
	Load(ctx context.Context) error
	Put(ctx context.Context, key, value string) error
	All() domain.Snapshot

	// OnReplicated registers fn to run after every remote merge that
	// changed local state. fn receives the post-merge snapshot.
	OnReplicated(fn func(domain.Snapshot))

	ContentAddress() domain.ContentAddress

	// Address is the full store address join-mode peers open.
	Address() string

	Close() error
}

// Opener creates or opens stores.
type Opener interface {
	Create(ctx context.Context, name string, policy domain.AccessPolicy) (Store, error)
	Open(ctx context.Context, address string, policy domain.AccessPolicy) (Store, error)
}
