package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/security/middleware"
)

const (
	pingInterval = 15 * time.Second
	writeWait    = 5 * time.Second
)

// ChangesHandler streams change notifications over a websocket. Clients
// re-fetch the affected collection on every message.
type ChangesHandler struct {
	hub            *events.Hub
	logger         *slog.Logger
	allowedOrigins []string
}

// NewChangesHandler creates a new change feed handler
func NewChangesHandler(hub *events.Hub, logger *slog.Logger, allowedOrigins []string) *ChangesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangesHandler{hub: hub, logger: logger, allowedOrigins: allowedOrigins}
}

// upgrader is initialized per-request to use instance's allowed origins
func (h *ChangesHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients
				return true
			}
			if middleware.OriginAllowed(h.allowedOrigins, origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/changes
func (h *ChangesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	changes, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	userID := ""
	if actor, ok := middleware.GetActorFromContext(r.Context()); ok {
		userID = actor.UserID
	}
	h.logger.Debug("change feed opened", slog.String("user_id", userID))

	// The read loop only exists to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case c, ok := <-changes:
			if !ok {
				return
			}
			c.Origin = ""
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(c); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("websocket closed", slog.String("user_id", userID))
				}
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			h.logger.Debug("change feed closed", slog.String("user_id", userID))
			return
		case <-r.Context().Done():
			return
		}
	}
}
