package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/pkg/circuitbreaker"
)

// envelope carries an event between instances sharing a Redis server.
type envelope struct {
	InstanceID string        `json:"instance_id"`
	Event      *domain.Event `json:"event"`
}

// RedisBus mirrors client events to a Redis channel so that remote
// observers (a second UI, a session recorder) can follow them. Publishing is
// guarded by a circuit breaker; a broken Redis never stalls the control
// goroutine for long.
type RedisBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

// NewRedisBus publishes on a channel derived from prefix. Every event is
// wrapped with instanceID.
func NewRedisBus(client *redis.Client, prefix, instanceID string, breaker *circuitbreaker.CircuitBreaker, logger *zap.SugaredLogger) *RedisBus {
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisBus{
		client:     client,
		channel:    prefix + "events",
		instanceID: instanceID,
		breaker:    breaker,
		logger:     logger,
	}
}

func (b *RedisBus) Channel() string {
	return b.channel
}

// Publish fails fast with circuitbreaker.ErrOpen while Redis is unavailable.
func (b *RedisBus) Publish(ctx context.Context, event *domain.Event) error {
	data, err := json.Marshal(envelope{InstanceID: b.instanceID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = b.breaker.Execute(func() error {
		return b.client.Publish(ctx, b.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	b.logger.Debugw("Published event", "type", event.Type, "channel", b.channel)
	return nil
}

// Subscribe delivers events from other instances to handler until ctx is
// done. ready, when not nil, is closed once the subscription is active.
func (b *RedisBus) Subscribe(ctx context.Context, ready chan<- struct{}, handler func(instanceID string, event *domain.Event) error) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Event == nil {
				b.logger.Warnw("Failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			if env.InstanceID == b.instanceID {
				continue
			}
			if err := handler(env.InstanceID, env.Event); err != nil {
				b.logger.Warnw("Error handling event", "type", env.Event.Type, "error", err)
			}
		}
	}
}
