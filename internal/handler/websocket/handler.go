package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/hub"
)

// Handler upgrades HTTP requests to WebSocket connections and hands
// them to the hub. A connection arrives roomless; it picks a room with
// create_room/join_room frames afterwards.
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewHandler creates a Handler bound to the given hub.
func NewHandler(h *hub.Hub) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the configured CORS origin once the
				// desktop client sends an Origin header.
				return true
			},
		},
		hub: h,
	}
}

// HandleConnection serves GET /ws.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logrus.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	logCtx := logrus.WithField("conn_id", client.ID())

	if !h.hub.Register(client) {
		logCtx.Error("WS Handler: Hub queue full, rejecting connection")
		client.CloseConn()
		return
	}

	client.Run()
	logCtx.Info("WS Handler: Connection established")
}
