// Package logtest provides a Logger that records entries for assertions.
package logtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// Entry is one recorded log call.
type Entry struct {
	Level string
	Msg   string
	Args  []any
}

// Attr returns the value logged under key, if any.
func (e Entry) Attr(key string) (any, bool) {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1], true
		}
	}
	return nil, false
}

// String renders the entry for test failure messages.
func (e Entry) String() string {
	return fmt.Sprintf("%s %s %v", e.Level, e.Msg, e.Args)
}

// Recorder is a logger.Logger that keeps every entry in memory.
// Loggers derived through With share the same entry list.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	args    []any
}

var _ logger.Logger = (*Recorder)(nil)

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (r *Recorder) record(level, msg string, args []any) {
	all := append(append([]any{}, r.args...), args...)
	r.mu.Lock()
	*r.entries = append(*r.entries, Entry{Level: level, Msg: msg, Args: all})
	r.mu.Unlock()
}

func (r *Recorder) Debug(msg string, args ...any) { r.record("debug", msg, args) }
func (r *Recorder) Info(msg string, args ...any)  { r.record("info", msg, args) }
func (r *Recorder) Warn(msg string, args ...any)  { r.record("warn", msg, args) }
func (r *Recorder) Error(msg string, args ...any) { r.record("error", msg, args) }

func (r *Recorder) With(args ...any) logger.Logger {
	return &Recorder{mu: r.mu, entries: r.entries, args: append(append([]any{}, r.args...), args...)}
}

func (r *Recorder) WithContext(ctx context.Context) logger.Logger { return r }

// Entries returns a copy of all entries recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(*r.entries))
	copy(out, *r.entries)
	return out
}

// Count returns how many entries have the given level and message.
// An empty msg matches every message at that level.
func (r *Recorder) Count(level, msg string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level && (msg == "" || e.Msg == msg) {
			n++
		}
	}
	return n
}
