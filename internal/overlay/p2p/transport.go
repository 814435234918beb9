package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/yndnr/meshkv/internal/core/domain"
)

const (
	directProtocol protocol.ID = "/meshkv/direct/1.0.0"

	maxDirectMessage = 64 << 20
	streamTimeout    = 30 * time.Second
)

var errClosed = errors.New("overlay closed")

type directFrame struct {
	Topic   string `json:"t"`
	Payload []byte `json:"p"`
}

// LocalID returns the peer ID.
func (o *Overlay) LocalID() string {
	return o.host.ID().String()
}

// Broadcast publishes msg on the GossipSub topic.
func (o *Overlay) Broadcast(ctx context.Context, topic string, msg []byte) error {
	t, err := o.topic(topic)
	if err != nil {
		return err
	}
	return t.Publish(ctx, msg)
}

// Send opens a direct stream to the peer and writes one frame.
func (o *Overlay) Send(ctx context.Context, to, topic string, msg []byte) error {
	id, err := peer.Decode(to)
	if err != nil {
		return domain.ErrPeerUnknown.WithDetails(to).WithCause(err)
	}
	data, err := json.Marshal(directFrame{Topic: topic, Payload: msg})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s, err := o.host.NewStream(ctx, id, directProtocol)
	if err != nil {
		return fmt.Errorf("open stream to %s: %w", to, err)
	}
	defer s.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = s.SetWriteDeadline(dl)
	} else {
		_ = s.SetWriteDeadline(time.Now().Add(streamTimeout))
	}
	if _, err := s.Write(data); err != nil {
		_ = s.Reset()
		return fmt.Errorf("write to %s: %w", to, err)
	}
	return s.CloseWrite()
}

// Subscribe joins the GossipSub topic and routes both published and
// direct messages for it to fn.
func (o *Overlay) Subscribe(topic string, fn func(from string, msg []byte)) func() {
	o.mu.Lock()
	o.subs[topic] = fn
	o.mu.Unlock()

	t, err := o.topic(topic)
	if err != nil {
		o.logger.Warn("join topic failed", "topic", topic, "error", err)
		return o.unsubscriber(topic, nil)
	}
	sub, err := t.Subscribe()
	if err != nil {
		o.logger.Warn("subscribe failed", "topic", topic, "error", err)
		return o.unsubscriber(topic, nil)
	}

	o.mu.Lock()
	if old, ok := o.psubs[topic]; ok {
		old.Cancel()
	}
	o.psubs[topic] = sub
	o.mu.Unlock()

	o.wg.Add(1)
	go o.readSubscription(sub, topic)
	return o.unsubscriber(topic, sub)
}

func (o *Overlay) unsubscriber(topic string, sub *pubsub.Subscription) func() {
	return func() {
		o.mu.Lock()
		delete(o.subs, topic)
		if sub != nil && o.psubs[topic] == sub {
			delete(o.psubs, topic)
		}
		o.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
	}
}

func (o *Overlay) readSubscription(sub *pubsub.Subscription, topic string) {
	defer o.wg.Done()
	self := o.host.ID()
	for {
		msg, err := sub.Next(o.ctx)
		if err != nil {
			// Cancelled subscription or closed overlay.
			return
		}
		if msg.ReceivedFrom == self || msg.GetFrom() == self {
			continue
		}
		o.dispatch(topic, msg.GetFrom().String(), msg.Data)
	}
}

func (o *Overlay) handleStream(s network.Stream) {
	defer s.Close()
	_ = s.SetReadDeadline(time.Now().Add(streamTimeout))

	data, err := io.ReadAll(io.LimitReader(s, maxDirectMessage))
	if err != nil {
		_ = s.Reset()
		o.logger.Debug("read direct stream failed", "peer", s.Conn().RemotePeer().String(), "error", err)
		return
	}
	var f directFrame
	if err := json.Unmarshal(data, &f); err != nil {
		o.logger.Debug("dropping undecodable frame", "peer", s.Conn().RemotePeer().String(), "error", err)
		return
	}
	o.dispatch(f.Topic, s.Conn().RemotePeer().String(), f.Payload)
}

func (o *Overlay) dispatch(topic, from string, payload []byte) {
	o.mu.Lock()
	fn := o.subs[topic]
	o.mu.Unlock()
	if fn == nil {
		o.logger.Debug("no subscriber for topic", "topic", topic, "from", from)
		return
	}
	fn(from, payload)
}

func (o *Overlay) topic(name string) (*pubsub.Topic, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.topics == nil {
		return nil, errClosed
	}
	if t, ok := o.topics[name]; ok {
		return t, nil
	}
	t, err := o.pubsub.Join(name)
	if err != nil {
		return nil, fmt.Errorf("join topic %s: %w", name, err)
	}
	o.topics[name] = t
	return t, nil
}
