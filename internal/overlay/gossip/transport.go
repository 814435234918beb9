package gossip

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/memberlist"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/meshkv/internal/core/domain"
)

// LocalID returns the memberlist node name.
func (o *Overlay) LocalID() string {
	return o.ml.LocalNode().Name
}

// Broadcast sends msg to every other member over reliable streams.
// Members are contacted concurrently; the first failure is returned.
func (o *Overlay) Broadcast(ctx context.Context, topic string, msg []byte) error {
	data, err := o.encodeMessage(topic, msg)
	if err != nil {
		return err
	}

	self := o.LocalID()
	g, ctx := errgroup.WithContext(ctx)
	for _, node := range o.ml.Members() {
		if node.Name == self {
			continue
		}
		node := node
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := o.ml.SendReliable(node, data); err != nil {
				return fmt.Errorf("send to %s: %w", node.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Send delivers msg to the member named to.
func (o *Overlay) Send(ctx context.Context, to, topic string, msg []byte) error {
	node := o.member(to)
	if node == nil {
		return domain.ErrPeerUnknown.WithDetails(to)
	}
	data, err := o.encodeMessage(topic, msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.ml.SendReliable(node, data)
}

// Subscribe routes messages for topic to fn. Handlers run on their own
// goroutine so memberlist's receive path never blocks.
func (o *Overlay) Subscribe(topic string, fn func(from string, msg []byte)) func() {
	o.subsMu.Lock()
	o.subs[topic] = fn
	o.subsMu.Unlock()
	return func() {
		o.subsMu.Lock()
		delete(o.subs, topic)
		o.subsMu.Unlock()
	}
}

func (o *Overlay) member(name string) *memberlist.Node {
	for _, node := range o.ml.Members() {
		if node.Name == name {
			return node
		}
	}
	return nil
}

func (o *Overlay) encodeMessage(topic string, msg []byte) ([]byte, error) {
	data, err := json.Marshal(frame{Kind: kindMessage, From: o.LocalID(), Topic: topic, Payload: msg})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}
