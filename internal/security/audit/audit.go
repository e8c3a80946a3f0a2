package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

type requestIDKey struct{}

// WithRequestID stores the request ID for later audit entries
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, actor domain.Actor, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", actor.UserID),
		slog.String("username", actor.Username),
		slog.String("role", string(actor.Role)),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", RequestID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

// LogResult records a mutation outcome; err decides between "success" and "failed"
func (al *Logger) LogResult(ctx context.Context, actor domain.Actor, action, resource, resourceID string, err error) {
	if err != nil {
		al.LogAction(ctx, actor, action, resource, resourceID, "failed", err.Error())
		return
	}
	al.LogAction(ctx, actor, action, resource, resourceID, "success", "")
}

func (al *Logger) LogDenied(ctx context.Context, actor domain.Actor, reason string) {
	al.LogAction(ctx, actor, "access_denied", "api", "", "denied", reason)
}
