package redisserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yndnr/meshkv/internal/core/domain"
	"github.com/yndnr/meshkv/internal/core/lifecycle"
	"github.com/yndnr/meshkv/internal/telemetry/logger"
)

// Node is the read-only node view reported by INFO.
type Node interface {
	NodeID() string
	Mode() string
	StoreAddress() string
	State() lifecycle.State
	Peers() int
}

// KV is the attached store.
type KV interface {
	Get(key string) (string, bool)
	All() domain.Snapshot
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StoreFunc returns the attached store, or domain.ErrNotAttached.
type StoreFunc func() (KV, error)

const defaultScanCount = 10

type command struct {
	// arity is the exact argument count including the name, or -n for
	// at least n.
	arity int
	store bool
	run   func(ctx context.Context, w *Writer, kv KV, args [][]byte) bool
}

// CommandHandler dispatches decoded commands.
type CommandHandler struct {
	node     Node
	store    StoreFunc
	version  string
	logger   logger.Logger
	commands map[string]command
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(node Node, store StoreFunc, version string, log logger.Logger) *CommandHandler {
	if log == nil {
		log = logger.Default()
	}
	h := &CommandHandler{node: node, store: store, version: version, logger: log}
	h.commands = map[string]command{
		"PING":    {arity: -1, run: h.ping},
		"ECHO":    {arity: 2, run: h.echo},
		"QUIT":    {arity: 1, run: h.quit},
		"SELECT":  {arity: 2, run: h.selectDB},
		"COMMAND": {arity: -1, run: h.commandInfo},
		"INFO":    {arity: -1, run: h.info},
		"GET":     {arity: 2, store: true, run: h.get},
		"MGET":    {arity: -2, store: true, run: h.mget},
		"SET":     {arity: -3, store: true, run: h.set},
		"DEL":     {arity: -2, store: true, run: h.del},
		"EXISTS":  {arity: -2, store: true, run: h.exists},
		"KEYS":    {arity: 2, store: true, run: h.keys},
		"SCAN":    {arity: -2, store: true, run: h.scan},
		"DBSIZE":  {arity: 1, store: true, run: h.dbsize},
	}
	return h
}

// Handle executes args and writes the reply. It reports whether the
// connection should close.
func (h *CommandHandler) Handle(ctx context.Context, w *Writer, args [][]byte) bool {
	name := strings.ToUpper(string(args[0]))
	cmd, ok := h.commands[name]
	if !ok {
		w.Error(fmt.Sprintf("ERR unknown command '%s'", args[0]))
		return false
	}
	if (cmd.arity > 0 && len(args) != cmd.arity) || (cmd.arity < 0 && len(args) < -cmd.arity) {
		w.Error(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
		return false
	}

	var kv KV
	if cmd.store {
		var err error
		if kv, err = h.store(); err != nil {
			w.Error(formatError(err))
			return false
		}
	}
	return cmd.run(ctx, w, kv, args)
}

// formatError renders err as a RESP error line. Domain errors carry their
// code after the prefix.
func formatError(err error) string {
	prefix := "ERR"
	switch {
	case errors.Is(err, domain.ErrNotAttached):
		prefix = "LOADING"
	case errors.Is(err, domain.ErrWriteDenied):
		prefix = "NOPERM"
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		return prefix + " " + de.Code + " " + de.Message
	}
	return prefix + " " + err.Error()
}

func (h *CommandHandler) ping(_ context.Context, w *Writer, _ KV, args [][]byte) bool {
	switch len(args) {
	case 1:
		w.Simple("PONG")
	case 2:
		w.Bulk(string(args[1]))
	default:
		w.Error("ERR wrong number of arguments for 'ping' command")
	}
	return false
}

func (h *CommandHandler) echo(_ context.Context, w *Writer, _ KV, args [][]byte) bool {
	w.Bulk(string(args[1]))
	return false
}

func (h *CommandHandler) quit(_ context.Context, w *Writer, _ KV, _ [][]byte) bool {
	w.Simple("OK")
	return true
}

func (h *CommandHandler) selectDB(_ context.Context, w *Writer, _ KV, args [][]byte) bool {
	if string(args[1]) != "0" {
		w.Error("ERR DB index is out of range")
		return false
	}
	w.Simple("OK")
	return false
}

// commandInfo answers the COMMAND request redis-cli sends on connect.
func (h *CommandHandler) commandInfo(_ context.Context, w *Writer, _ KV, _ [][]byte) bool {
	w.Array(0)
	return false
}

func (h *CommandHandler) info(_ context.Context, w *Writer, _ KV, _ [][]byte) bool {
	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\nmeshkv_version:%s\r\n", h.version)
	fmt.Fprintf(&b, "# Node\r\nnode_id:%s\r\nmode:%s\r\nstate:%s\r\npeers:%d\r\nstore_address:%s\r\n",
		h.node.NodeID(), h.node.Mode(), h.node.State(), h.node.Peers(), h.node.StoreAddress())
	if kv, err := h.store(); err == nil {
		fmt.Fprintf(&b, "# Keyspace\r\ndb0:keys=%d\r\n", len(kv.All()))
	}
	w.Bulk(b.String())
	return false
}

func (h *CommandHandler) get(_ context.Context, w *Writer, kv KV, args [][]byte) bool {
	if v, ok := kv.Get(string(args[1])); ok {
		w.Bulk(v)
	} else {
		w.Null()
	}
	return false
}

func (h *CommandHandler) mget(_ context.Context, w *Writer, kv KV, args [][]byte) bool {
	w.Array(len(args) - 1)
	for _, k := range args[1:] {
		if v, ok := kv.Get(string(k)); ok {
			w.Bulk(v)
		} else {
			w.Null()
		}
	}
	return false
}

// set handles SET key value [NX|XX]. Expiry options are rejected.
func (h *CommandHandler) set(ctx context.Context, w *Writer, kv KV, args [][]byte) bool {
	key, value := string(args[1]), string(args[2])

	var nx, xx bool
	for _, opt := range args[3:] {
		switch strings.ToUpper(string(opt)) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			w.Error("ERR syntax error")
			return false
		}
	}
	if nx && xx {
		w.Error("ERR syntax error")
		return false
	}

	if nx || xx {
		_, exists := kv.Get(key)
		if (nx && exists) || (xx && !exists) {
			w.Null()
			return false
		}
	}

	if err := kv.Put(ctx, key, value); err != nil {
		h.logger.Debug("redis set failed", "key", key, "error", err)
		w.Error(formatError(err))
		return false
	}
	w.Simple("OK")
	return false
}

func (h *CommandHandler) del(ctx context.Context, w *Writer, kv KV, args [][]byte) bool {
	var n int64
	for _, k := range args[1:] {
		key := string(k)
		if _, ok := kv.Get(key); !ok {
			continue
		}
		if err := kv.Delete(ctx, key); err != nil {
			h.logger.Debug("redis del failed", "key", key, "error", err)
			w.Error(formatError(err))
			return false
		}
		n++
	}
	w.Int(n)
	return false
}

func (h *CommandHandler) exists(_ context.Context, w *Writer, kv KV, args [][]byte) bool {
	var n int64
	for _, k := range args[1:] {
		if _, ok := kv.Get(string(k)); ok {
			n++
		}
	}
	w.Int(n)
	return false
}

func (h *CommandHandler) keys(_ context.Context, w *Writer, kv KV, args [][]byte) bool {
	matched := matchingKeys(kv.All(), string(args[1]))
	w.Array(len(matched))
	for _, k := range matched {
		w.Bulk(k)
	}
	return false
}

// scan handles SCAN cursor [MATCH pattern] [COUNT n]. The cursor is an
// offset into the sorted key list.
func (h *CommandHandler) scan(_ context.Context, w *Writer, kv KV, args [][]byte) bool {
	cursor, err := strconv.Atoi(string(args[1]))
	if err != nil || cursor < 0 {
		w.Error("ERR invalid cursor")
		return false
	}

	pattern, count := "*", defaultScanCount
	for i := 2; i < len(args); i += 2 {
		if i+1 >= len(args) {
			w.Error("ERR syntax error")
			return false
		}
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			pattern = string(args[i+1])
		case "COUNT":
			count, err = strconv.Atoi(string(args[i+1]))
			if err != nil || count < 1 {
				w.Error("ERR value is not an integer or out of range")
				return false
			}
		default:
			w.Error("ERR syntax error")
			return false
		}
	}

	keys := kv.All().Keys()
	end := min(cursor+count, len(keys))
	next := end
	if end >= len(keys) {
		next = 0
	}

	var page []string
	if cursor < len(keys) {
		for _, k := range keys[cursor:end] {
			if matchGlob(pattern, k) {
				page = append(page, k)
			}
		}
	}

	w.Array(2)
	w.Bulk(strconv.Itoa(next))
	w.Array(len(page))
	for _, k := range page {
		w.Bulk(k)
	}
	return false
}

func (h *CommandHandler) dbsize(_ context.Context, w *Writer, kv KV, _ [][]byte) bool {
	w.Int(int64(len(kv.All())))
	return false
}

func matchingKeys(snap domain.Snapshot, pattern string) []string {
	var out []string
	for k := range snap {
		if matchGlob(pattern, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// matchGlob matches s against a pattern where * matches any run of
// characters and ? matches exactly one. A backslash escapes the next
// pattern character.
func matchGlob(pattern, s string) bool {
	p, i := 0, 0
	star, mark := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, i
			p++
		case p < len(pattern) && (pattern[p] == '?' || literalAt(pattern, p) == s[i]):
			if pattern[p] == '\\' && p+1 < len(pattern) {
				p++
			}
			p++
			i++
		case star >= 0:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// literalAt returns the byte pattern[p] stands for, resolving escapes.
func literalAt(pattern string, p int) byte {
	if pattern[p] == '\\' && p+1 < len(pattern) {
		return pattern[p+1]
	}
	return pattern[p]
}
