package kvstore

import (
	"github.com/oklog/ulid/v2"
)

// Op is an entry operation.
type Op string

const (
	OpPut Op = "put"
	OpDel Op = "del"
)

// Entry is one write to a key. The newest entry per key wins.
type Entry struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
	Op     Op     `json:"op"`
	Clock  uint64 `json:"clock"`
	Author string `json:"author"`
}

func newEntry(op Op, key, value string, clock uint64, author string) Entry {
	return Entry{
		ID:     ulid.Make().String(),
		Key:    key,
		Value:  value,
		Op:     op,
		Clock:  clock,
		Author: author,
	}
}

// Newer reports whether e supersedes o: higher Lamport clock first, then
// author, then entry ID. Every replica picks the same winner.
func (e Entry) Newer(o Entry) bool {
	if e.Clock != o.Clock {
		return e.Clock > o.Clock
	}
	if e.Author != o.Author {
		return e.Author > o.Author
	}
	return e.ID > o.ID
}

// Deleted reports whether e is a tombstone.
func (e Entry) Deleted() bool {
	return e.Op == OpDel
}

func (e Entry) valid() bool {
	return e.Key != "" && e.Author != "" && (e.Op == OpPut || e.Op == OpDel)
}
