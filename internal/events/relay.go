package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances
const DefaultChannel = "farmorders:changes"

// PubSub is the broker port; internal/infrastructure/redis.Client implements it
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, fn func(payload []byte)) error
}

// Relay mirrors hub changes through a broker so several server instances
// share one change feed
type Relay struct {
	hub     *Hub
	ps      PubSub
	channel string
	logger  *slog.Logger
}

// NewRelay creates a relay for hub over ps
func NewRelay(hub *Hub, ps PubSub, channel string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{hub: hub, ps: ps, channel: channel, logger: logger}
}

// Start subscribes to the broker and begins forwarding local changes.
// Remote delivery stops when ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.ps.Subscribe(ctx, r.channel, r.receive); err != nil {
		return err
	}
	r.hub.setForward(r.send)
	r.logger.Info("change relay started", slog.String("channel", r.channel))
	return nil
}

func (r *Relay) send(ctx context.Context, c Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		r.logger.Error("failed to encode change", slog.String("error", err.Error()))
		return
	}
	if err := r.ps.Publish(context.WithoutCancel(ctx), r.channel, payload); err != nil {
		r.logger.Warn("failed to relay change",
			slog.String("topic", string(c.Topic)),
			slog.String("id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Relay) receive(payload []byte) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		r.logger.Warn("ignoring malformed change", slog.String("error", err.Error()))
		return
	}
	// Our own changes were already delivered locally
	if c.Origin == r.hub.Instance() {
		return
	}
	r.hub.deliver(c)
}
