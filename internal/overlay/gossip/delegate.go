package gossip

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/memberlist"
)

type frameKind string

const (
	kindProvide frameKind = "provide"
	kindMessage frameKind = "msg"
)

// frame is the envelope for every user message on the memberlist wire.
type frame struct {
	Kind     frameKind       `json:"k"`
	From     string          `json:"f"`
	Topic    string          `json:"t,omitempty"`
	Payload  []byte          `json:"p,omitempty"`
	Provider *ProviderRecord `json:"r,omitempty"`
}

func (o *Overlay) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		o.logger.Debug("dropping undecodable frame", "error", err)
		return
	}

	switch f.Kind {
	case kindProvide:
		if f.Provider == nil {
			return
		}
		if o.providers.Merge(*f.Provider) {
			// Relay once so records reach members the origin did not pick.
			if err := o.queueProvider(*f.Provider); err != nil {
				o.logger.Debug("relay provider record failed", "error", err)
			}
		}

	case kindMessage:
		o.subsMu.RLock()
		fn := o.subs[f.Topic]
		o.subsMu.RUnlock()
		if fn == nil {
			o.logger.Debug("no subscriber for topic", "topic", f.Topic, "from", f.From)
			return
		}
		go fn(f.From, f.Payload)

	default:
		o.logger.Debug("unknown frame kind", "kind", string(f.Kind))
	}
}

func (o *Overlay) queueProvider(rec ProviderRecord) error {
	data, err := json.Marshal(frame{Kind: kindProvide, From: o.ml.LocalNode().Name, Provider: &rec})
	if err != nil {
		return fmt.Errorf("encode provider record: %w", err)
	}
	o.queue.QueueBroadcast(&providerBroadcast{rec: rec, msg: data})
	return nil
}

// providerBroadcast replaces any queued record for the same key and peer.
type providerBroadcast struct {
	rec ProviderRecord
	msg []byte
}

func (b *providerBroadcast) Invalidates(other memberlist.Broadcast) bool {
	o, ok := other.(*providerBroadcast)
	return ok && o.rec.Key == b.rec.Key && o.rec.PeerID == b.rec.PeerID
}

func (b *providerBroadcast) Message() []byte { return b.msg }

func (b *providerBroadcast) Finished() {}

// delegate implements memberlist.Delegate.
type delegate struct {
	overlay *Overlay
}

// NodeMeta is unused; identity travels in the node name.
func (d *delegate) NodeMeta(limit int) []byte { return nil }

// NotifyMsg receives gossip and reliable user messages. The buffer is
// reused by memberlist, so it is copied before decoding.
func (d *delegate) NotifyMsg(b []byte) {
	d.overlay.handleFrame(append([]byte(nil), b...))
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	return d.overlay.queue.GetBroadcasts(overhead, limit)
}

// LocalState ships the provider table during push/pull sync.
func (d *delegate) LocalState(join bool) []byte {
	data, err := json.Marshal(d.overlay.providers.Records())
	if err != nil {
		return nil
	}
	return data
}

func (d *delegate) MergeRemoteState(buf []byte, join bool) {
	var recs []ProviderRecord
	if err := json.Unmarshal(buf, &recs); err != nil {
		d.overlay.logger.Debug("dropping remote provider state", "error", err)
		return
	}
	for _, rec := range recs {
		d.overlay.providers.Merge(rec)
	}
}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	overlay *Overlay
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	e.overlay.logger.Info("peer joined",
		"peer", node.Name,
		"addr", net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port))))
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.overlay.logger.Info("peer left", "peer", node.Name, "addr", node.Addr.String())
}

func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.overlay.logger.Debug("peer updated", "peer", node.Name, "addr", node.Addr.String())
}
