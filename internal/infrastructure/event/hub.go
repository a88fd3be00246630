package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/erp/syncengine/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHubBufferSize = 32
	defaultHubMaxClients = 100
)

// ErrTooManySubscribers is returned when the hub is at capacity
var ErrTooManySubscribers = errors.New("too many event stream subscribers")

// ErrHubClosed is returned when subscribing to a closed hub
var ErrHubClosed = errors.New("event hub closed")

// Message is a serialized event ready to be written to a stream
type Message struct {
	ID   string
	Type string
	Data []byte
}

// Subscription is one live stream client
type Subscription struct {
	id    string
	types map[string]struct{}
	ch    chan Message
}

// ID returns the subscription identifier
func (s *Subscription) ID() string {
	return s.id
}

// Messages returns the channel the hub delivers to. It is closed on unsubscribe.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

func (s *Subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Hub is an event handler that fans events out to stream subscribers.
// Delivery is best effort: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscription]struct{}
	closed     bool
	maxClients int
	bufferSize int
	serializer *EventSerializer
	logger     *zap.Logger
	dropped    atomic.Int64
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithHubBufferSize sets the per-subscriber buffer
func WithHubBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithHubMaxClients caps concurrent subscribers
func WithHubMaxClients(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxClients = n
		}
	}
}

// WithHubLogger sets the logger
func WithHubLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates a hub using serializer to encode event payloads
func NewHub(serializer *EventSerializer, opts ...HubOption) *Hub {
	h := &Hub{
		subs:       make(map[*Subscription]struct{}),
		maxClients: defaultHubMaxClients,
		bufferSize: defaultHubBufferSize,
		serializer: serializer,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new client for the given event types, or all events when none are given
func (h *Hub) Subscribe(eventTypes ...string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if len(h.subs) >= h.maxClients {
		return nil, ErrTooManySubscribers
	}

	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan Message, h.bufferSize),
	}
	if len(eventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}
	h.subs[sub] = struct{}{}
	h.logger.Debug("stream subscriber added", zap.String("subscription_id", sub.id), zap.Int("subscribers", len(h.subs)))
	return sub, nil
}

// Unsubscribe removes a client and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	h.logger.Debug("stream subscriber removed", zap.String("subscription_id", sub.id), zap.Int("subscribers", len(h.subs)))
}

// Handle implements shared.EventHandler
func (h *Hub) Handle(ctx context.Context, event shared.DomainEvent) error {
	data, err := h.serializer.Serialize(event)
	if err != nil {
		return err
	}
	msg := Message{ID: event.EventID().String(), Type: event.EventType(), Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(msg.Type) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
			h.logger.Warn("dropping event for slow stream subscriber",
				zap.String("subscription_id", sub.id),
				zap.String("event_type", msg.Type))
		}
	}
	return nil
}

// EventTypes subscribes the hub to every event
func (h *Hub) EventTypes() []string {
	return nil
}

// Count returns the number of live subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

var _ shared.EventHandler = (*Hub)(nil)
