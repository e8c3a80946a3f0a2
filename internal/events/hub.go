package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/farmorders/internal/observability/metrics"
)

// Topic names the collection that changed
type Topic string

const (
	TopicUsers    Topic = "users"
	TopicOrders   Topic = "orders"
	TopicAbsences Topic = "absences"
)

// Action is the kind of change
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Change tells subscribers that a record changed; they re-fetch what they need
type Change struct {
	Topic  Topic     `json:"topic"`
	Action Action    `json:"action"`
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin,omitempty"`
}

// Publisher is implemented by Hub; services depend on this
type Publisher interface {
	Publish(ctx context.Context, topic Topic, action Action, id string)
}

// Hub fans changes out to in-process subscribers. A subscriber whose buffer
// is full misses the change.
type Hub struct {
	mu       sync.RWMutex
	subs     map[uint64]chan Change
	nextID   uint64
	buffer   int
	instance string
	forward  func(ctx context.Context, c Change)
	logger   *slog.Logger
}

// NewHub creates a hub with per-subscriber buffers of the given size
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:     make(map[uint64]chan Change),
		buffer:   buffer,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

// Instance identifies this hub in relayed changes
func (h *Hub) Instance() string {
	return h.instance
}

// Publish delivers a change locally and hands it to the relay, if any
func (h *Hub) Publish(ctx context.Context, topic Topic, action Action, id string) {
	c := Change{Topic: topic, Action: action, ID: id, At: time.Now().UTC(), Origin: h.instance}
	h.deliver(c)

	h.mu.RLock()
	forward := h.forward
	h.mu.RUnlock()
	if forward != nil {
		forward(ctx, c)
	}
}

// Subscribe registers a subscriber; call the returned func to unsubscribe
func (h *Hub) Subscribe() (<-chan Change, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Change, h.buffer)
	h.subs[id] = ch
	h.mu.Unlock()
	metrics.IncrementSubscribers()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
			metrics.DecrementSubscribers()
		})
	}
}

// SubscriberCount returns the number of live subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) deliver(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- c:
		default:
			h.logger.Debug("change dropped for slow subscriber",
				slog.Uint64("subscriber", id),
				slog.String("topic", string(c.Topic)),
			)
		}
	}
}

func (h *Hub) setForward(fn func(ctx context.Context, c Change)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forward = fn
}
