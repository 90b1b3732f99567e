package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// TypedPubSub publishes and consumes JSON-encoded T on Redis channels.
type TypedPubSub[T any] struct {
	client goredis.UniversalClient
	logger *logrus.Logger
}

func NewTypedPubSub[T any](client goredis.UniversalClient, logger *logrus.Logger) *TypedPubSub[T] {
	return &TypedPubSub[T]{client: client, logger: logger}
}

func (p *TypedPubSub[T]) Publish(ctx context.Context, channel string, msg T) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal pubsub payload: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe blocks, calling handler for every message on channel, until ctx
// is done. ready, when non-nil, is closed once the subscription is confirmed.
func (p *TypedPubSub[T]) Subscribe(ctx context.Context, channel string, ready chan<- struct{}, handler func(T)) error {
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var payload T
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				if p.logger != nil {
					p.logger.WithError(err).WithField("channel", channel).Warn("Dropping undecodable pubsub message")
				}
				continue
			}
			handler(payload)
		}
	}
}
