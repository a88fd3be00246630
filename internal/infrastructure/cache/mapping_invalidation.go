package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultInvalidationChannel = "syncengine:mapping-invalidation"
	defaultCloseTimeout        = 5 * time.Second
)

// InvalidationMessage is the payload broadcast when a mapping changes
type InvalidationMessage struct {
	Origin    string `json:"origin"`
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
}

// RedisMappingInvalidator broadcasts mapping changes over Redis Pub/Sub so that
// every instance drops the same key from its local cache
type RedisMappingInvalidator struct {
	client    *redis.Client
	channel   string
	origin    string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisMappingInvalidatorOption is a functional option for configuring the invalidator
type RedisMappingInvalidatorOption func(*RedisMappingInvalidator)

// WithInvalidationChannel sets the Pub/Sub channel name
func WithInvalidationChannel(channel string) RedisMappingInvalidatorOption {
	return func(i *RedisMappingInvalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisMappingInvalidatorOption {
	return func(i *RedisMappingInvalidator) {
		i.logger = logger
	}
}

// NewRedisMappingInvalidator creates an invalidator on a shared client.
// The caller keeps ownership of the client.
func NewRedisMappingInvalidator(client *redis.Client, opts ...RedisMappingInvalidatorOption) *RedisMappingInvalidator {
	i := &RedisMappingInvalidator{
		client:  client,
		channel: defaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish implements integration.MappingInvalidationBroadcaster
func (i *RedisMappingInvalidator) Publish(ctx context.Context, key integration.MappingKey) error {
	data, err := json.Marshal(InvalidationMessage{
		Origin:    i.origin,
		Key:       key.String(),
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish mapping invalidation",
			zap.String("channel", i.channel),
			zap.String("key", key.String()),
			zap.Error(err))
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Subscribe drops every key announced by other instances from local.
// It blocks until ctx is cancelled or Close is called; run it in a goroutine.
// The ready channel, when not nil, is closed once the subscription is confirmed.
func (i *RedisMappingInvalidator) Subscribe(ctx context.Context, local integration.MappingCache, ready chan<- struct{}) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.logger.Info("Subscribed to mapping invalidation channel", zap.String("channel", i.channel))
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Mapping invalidation subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Mapping invalidation channel closed")
				return nil
			}
			i.handle(msg.Payload, local)
		}
	}
}

func (i *RedisMappingInvalidator) handle(payload string, local integration.MappingCache) {
	var m InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		i.logger.Error("Failed to unmarshal invalidation message",
			zap.String("payload", payload),
			zap.Error(err))
		return
	}
	if m.Origin == i.origin {
		return
	}
	key, err := integration.ParseMappingKey(m.Key)
	if err != nil {
		i.logger.Warn("Ignoring invalidation for malformed key", zap.String("key", m.Key))
		return
	}
	local.Invalidate(key)
}

func (i *RedisMappingInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops a running subscription
func (i *RedisMappingInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}

var _ integration.MappingInvalidationBroadcaster = (*RedisMappingInvalidator)(nil)
