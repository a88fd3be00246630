package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/syncengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRelayChannel      = "syncengine:events"
	defaultRelayCloseTimeout = 5 * time.Second
)

// RelayEnvelope is the message carried on the relay channel
type RelayEnvelope struct {
	Origin  string          `json:"origin"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RedisEventRelay republishes local events on a Redis channel and hands events
// published by other instances to a local handler. Remote events are never
// republished, and each instance drops the envelopes it sent itself.
type RedisEventRelay struct {
	client     *redis.Client
	channel    string
	origin     string
	serializer *EventSerializer
	logger     *zap.Logger

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	isRunning bool
}

// RedisEventRelayOption configures the relay
type RedisEventRelayOption func(*RedisEventRelay)

// WithRelayChannel sets the Pub/Sub channel
func WithRelayChannel(channel string) RedisEventRelayOption {
	return func(r *RedisEventRelay) {
		if channel != "" {
			r.channel = channel
		}
	}
}

// WithRelayLogger sets the logger
func WithRelayLogger(logger *zap.Logger) RedisEventRelayOption {
	return func(r *RedisEventRelay) {
		r.logger = logger
	}
}

// NewRedisEventRelay creates a relay on a shared client
func NewRedisEventRelay(client *redis.Client, serializer *EventSerializer, opts ...RedisEventRelayOption) *RedisEventRelay {
	r := &RedisEventRelay{
		client:     client,
		channel:    defaultRelayChannel,
		origin:     uuid.NewString(),
		serializer: serializer,
		logger:     zap.NewNop(),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Origin returns the identifier this instance stamps on its envelopes
func (r *RedisEventRelay) Origin() string {
	return r.origin
}

// Handle publishes a local event to the relay channel
func (r *RedisEventRelay) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !r.serializer.IsRegistered(event.EventType()) {
		return nil
	}
	payload, err := r.serializer.Serialize(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(RelayEnvelope{Origin: r.origin, Type: event.EventType(), Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to relay event %s: %w", event.EventType(), err)
	}
	return nil
}

// EventTypes subscribes the relay to every event; unknown types are skipped in Handle
func (r *RedisEventRelay) EventTypes() []string {
	return nil
}

// Subscribe delivers remote events to local until ctx is cancelled or Close is called.
// The ready channel, when not nil, is closed once the subscription is confirmed.
func (r *RedisEventRelay) Subscribe(ctx context.Context, local shared.EventHandler, ready chan<- struct{}) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("relay subscription already running")
	}
	r.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	r.cancelFn = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		r.doneOnce.Do(func() { close(r.doneCh) })
	}()

	pubsub := r.client.Subscribe(subCtx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to relay channel: %w", err)
	}
	r.logger.Info("Subscribed to event relay channel", zap.String("channel", r.channel))
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			r.logger.Info("Event relay subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("Event relay channel closed")
				return nil
			}
			r.deliver(subCtx, msg.Payload, local)
		}
	}
}

func (r *RedisEventRelay) deliver(ctx context.Context, payload string, local shared.EventHandler) {
	var env RelayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Error("Failed to unmarshal relay envelope", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	event, err := r.serializer.Deserialize(env.Type, env.Payload)
	if err != nil {
		r.logger.Warn("Dropping relayed event", zap.String("event_type", env.Type), zap.Error(err))
		return
	}
	if err := local.Handle(ctx, event); err != nil {
		r.logger.Warn("Local handler rejected relayed event",
			zap.String("event_type", env.Type),
			zap.String("event_id", event.EventID().String()),
			zap.Error(err))
	}
}

// Close stops a running subscription
func (r *RedisEventRelay) Close() error {
	r.mu.Lock()
	cancelFn := r.cancelFn
	r.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-r.doneCh:
		case <-time.After(defaultRelayCloseTimeout):
			r.logger.Warn("Timeout waiting for relay subscription to stop")
		}
	}
	return nil
}

var _ shared.EventHandler = (*RedisEventRelay)(nil)
