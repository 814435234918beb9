package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
)

// Mode selects how a node attaches to the replicated store.
type Mode string

const (
	// ModeCreate originates the store and seeds it; it does not wait for peers.
	ModeCreate Mode = "create"

	// ModeJoin opens an existing store by address once enough peers are connected.
	ModeJoin Mode = "join"
)

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCreate:
		return ModeCreate, nil
	case ModeJoin:
		return ModeJoin, nil
	default:
		return "", ErrInvalidConfig.WithDetails(fmt.Sprintf("unknown mode %q", s))
	}
}

// WaitsForPeers reports whether the mode gates store attachment on peer count.
func (m Mode) WaitsForPeers() bool {
	return m == ModeJoin
}

// NodeIdentity identifies this node on the overlay.
// It is assigned once at startup and never changes.
type NodeIdentity struct {
	ID    string
	Addrs []string
}

// PeerSet is an immutable snapshot of connected peers.
type PeerSet struct {
	ids []string
}

// NewPeerSet builds a snapshot from peer IDs. The input slice is copied.
func NewPeerSet(ids []string) PeerSet {
	cp := make([]string, len(ids))
	copy(cp, ids)
	sort.Strings(cp)
	return PeerSet{ids: cp}
}

// Count returns the number of peers in the snapshot.
func (p PeerSet) Count() int {
	return len(p.ids)
}

// IDs returns a copy of the peer IDs.
func (p PeerSet) IDs() []string {
	cp := make([]string, len(p.ids))
	copy(cp, p.ids)
	return cp
}

// Contains reports whether id is part of the snapshot.
func (p PeerSet) Contains(id string) bool {
	i := sort.SearchStrings(p.ids, id)
	return i < len(p.ids) && p.ids[i] == id
}

// ContentAddress is the CID a node announces as "I can serve this".
type ContentAddress string

// ContentAddressFromCID wraps a CID.
func ContentAddressFromCID(c cid.Cid) ContentAddress {
	return ContentAddress(c.String())
}

// CID decodes the address back into a CID.
func (a ContentAddress) CID() (cid.Cid, error) {
	c, err := cid.Decode(string(a))
	if err != nil {
		return cid.Undef, ErrInvalidAddress.WithDetails(string(a)).WithCause(err)
	}
	return c, nil
}

// String implements fmt.Stringer.
func (a ContentAddress) String() string {
	return string(a)
}

// Wildcard grants write access to every node.
const Wildcard = "*"

// AccessPolicy lists the node IDs permitted to write.
// An empty Write list makes the store read-only.
type AccessPolicy struct {
	Write []string
}

// OpenWrite returns a policy that lets any node write.
func OpenWrite() AccessPolicy {
	return AccessPolicy{Write: []string{Wildcard}}
}

// ReadOnly returns a policy that forbids writes.
func ReadOnly() AccessPolicy {
	return AccessPolicy{Write: []string{}}
}

// CanWrite reports whether nodeID may write under this policy.
func (p AccessPolicy) CanWrite(nodeID string) bool {
	for _, w := range p.Write {
		if w == Wildcard || w == nodeID {
			return true
		}
	}
	return false
}

// Normalized returns a sorted, de-duplicated copy of the policy.
func (p AccessPolicy) Normalized() AccessPolicy {
	seen := make(map[string]struct{}, len(p.Write))
	out := make([]string, 0, len(p.Write))
	for _, w := range p.Write {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return AccessPolicy{Write: out}
}

// Snapshot is a full copy of the store's visible key-value state.
type Snapshot map[string]string

// Keys returns the snapshot keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	cp := make(Snapshot, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}
