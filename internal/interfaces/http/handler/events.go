package handler

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/infrastructure/event"
)

const defaultHeartbeat = 30 * time.Second

// EventStream is the fan-out point of integration events
type EventStream interface {
	Subscribe(eventTypes ...string) (*event.Subscription, error)
	Unsubscribe(sub *event.Subscription)
}

// EventStreamHandler streams integration events to operators over SSE
type EventStreamHandler struct {
	BaseHandler
	stream    EventStream
	heartbeat time.Duration
	logger    *zap.Logger
}

// EventStreamOption configures an EventStreamHandler
type EventStreamOption func(*EventStreamHandler)

// WithHeartbeat sets the heartbeat interval
func WithHeartbeat(interval time.Duration) EventStreamOption {
	return func(h *EventStreamHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithStreamLogger sets the logger
func WithStreamLogger(logger *zap.Logger) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.logger = logger
	}
}

// NewEventStreamHandler creates a new EventStreamHandler
func NewEventStreamHandler(stream EventStream, opts ...EventStreamOption) *EventStreamHandler {
	h := &EventStreamHandler{
		stream:    stream,
		heartbeat: defaultHeartbeat,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stream handles GET /events/stream?types=PendingCreated,PendingApproved.
// Without types every event is streamed.
func (h *EventStreamHandler) Stream(c *gin.Context) {
	var types []string
	if v := c.Query("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	sub, err := h.stream.Subscribe(types...)
	if err != nil {
		if errors.Is(err, event.ErrTooManySubscribers) {
			h.ServiceUnavailable(c, "Maximum number of event stream connections reached")
			return
		}
		h.ServiceUnavailable(c, "Event stream is shutting down")
		return
	}
	defer h.stream.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.logger.Info("Event stream client connected", zap.String("subscription_id", sub.ID()))

	writeEvent(c.Writer, "connected", "", fmt.Sprintf(`{"subscription_id":%q,"timestamp":%d}`, sub.ID(), time.Now().Unix()))
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			h.logger.Info("Event stream client disconnected", zap.String("subscription_id", sub.ID()))
			return
		case <-ticker.C:
			writeEvent(c.Writer, "heartbeat", "", fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()))
			c.Writer.Flush()
		case msg, ok := <-sub.Messages():
			if !ok {
				// hub closed during shutdown
				return
			}
			writeEvent(c.Writer, msg.Type, msg.ID, string(msg.Data))
			c.Writer.Flush()
		}
	}
}

func writeEvent(w io.Writer, name, id, data string) {
	if name != "" {
		fmt.Fprintf(w, "event: %s\n", name)
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// RegisterRoutes implements router.RouteRegistrar
func (h *EventStreamHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events/stream", h.Stream)
}
