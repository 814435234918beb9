package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spaolacci/murmur3"
)

// maxSyncPayload bounds a decompressed sync response.
const maxSyncPayload = 64 << 20

type messageType string

const (
	msgOp       messageType = "op"
	msgSyncReq  messageType = "sync-req"
	msgSyncResp messageType = "sync-resp"
)

// message is the replication wire format.
type message struct {
	Type  messageType `json:"type"`
	From  string      `json:"from"`
	Nonce string      `json:"nonce,omitempty"`
	Entry *Entry      `json:"entry,omitempty"`

	// Payload is a zstd-compressed syncBatch (sync-resp only).
	Payload []byte `json:"payload,omitempty"`
}

type syncBatch struct {
	Manifest json.RawMessage `json:"manifest,omitempty"`
	Entries  []Entry         `json:"entries"`
}

func (s *Store) broadcastEntry(ctx context.Context, e Entry) error {
	data, err := json.Marshal(message{Type: msgOp, From: s.nodeID, Entry: &e})
	if err != nil {
		return err
	}
	s.markSeen(data)
	return s.transport.Broadcast(ctx, s.addr.Topic(), data)
}

func (s *Store) requestSync(ctx context.Context) error {
	data, err := json.Marshal(message{Type: msgSyncReq, From: s.nodeID, Nonce: ulid.Make().String()})
	if err != nil {
		return err
	}
	s.markSeen(data)
	return s.transport.Broadcast(ctx, s.addr.Topic(), data)
}

// handleMessage is the transport callback for the store topic.
func (s *Store) handleMessage(from string, data []byte) {
	if s.closed.Load() {
		return
	}
	if s.markSeen(data) {
		return
	}

	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("dropping undecodable message", "from", from, "error", err)
		return
	}
	if msg.From == s.nodeID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	switch msg.Type {
	case msgOp:
		if msg.Entry == nil {
			return
		}
		s.merge(ctx, msg.From, []Entry{*msg.Entry})

	case msgSyncReq:
		s.answerSync(ctx, msg.From)

	case msgSyncResp:
		if err := s.applySync(ctx, msg); err != nil {
			s.logger.Warn("sync response rejected", "from", msg.From, "error", err)
		}

	default:
		s.logger.Debug("unknown message type", "from", msg.From, "type", string(msg.Type))
	}
}

// markSeen records the message fingerprint and reports whether it was
// already present.
func (s *Store) markSeen(data []byte) bool {
	seen, _ := s.seen.ContainsOrAdd(murmur3.Sum64(data), struct{}{})
	return seen
}

func (s *Store) answerSync(ctx context.Context, to string) {
	if !s.limiter.Allow() {
		s.logger.Debug("sync request throttled", "from", to)
		return
	}

	var batch syncBatch
	s.mu.RLock()
	if s.manifest != nil {
		if data, err := s.manifest.Encode(); err == nil {
			batch.Manifest = data
		}
	}
	s.mu.RUnlock()
	batch.Entries = s.snapshotEntries()

	if batch.Manifest == nil && len(batch.Entries) == 0 {
		return
	}

	raw, err := json.Marshal(batch)
	if err != nil {
		s.logger.Error("encode sync batch failed", "error", err)
		return
	}
	data, err := json.Marshal(message{
		Type:    msgSyncResp,
		From:    s.nodeID,
		Payload: s.encoder.EncodeAll(raw, nil),
	})
	if err != nil {
		s.logger.Error("encode sync response failed", "error", err)
		return
	}

	if err := s.transport.Send(ctx, to, s.addr.Topic(), data); err != nil {
		s.logger.Warn("send sync response failed", "to", to, "error", err)
		return
	}
	s.metrics.IncSyncServed()
	s.logger.Debug("sync response sent", "to", to, "entries", len(batch.Entries),
		"bytes", len(data), "raw_bytes", len(raw))
}

func (s *Store) applySync(ctx context.Context, msg message) error {
	raw, err := s.decoder.DecodeAll(msg.Payload, nil)
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	var batch syncBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	if len(batch.Manifest) > 0 {
		if err := s.adoptManifest(ctx, batch.Manifest); err != nil {
			return err
		}
	}
	for _, p := range s.takePending() {
		s.merge(ctx, p.from, p.entries)
	}
	n := s.merge(ctx, msg.From, batch.Entries)
	s.logger.Debug("sync response applied", "from", msg.From, "received", len(batch.Entries), "changed", n)
	return nil
}
