package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/hub"
	"github.com/PRISSET/Dev-Planner/internal/service"
)

// RoomHandler exposes the read-only HTTP surface next to the socket:
// a code preview so clients can validate a join code before opening a
// connection, and live broker stats.
type RoomHandler struct {
	collab *service.CollabService
	hub    *hub.Hub
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(collab *service.CollabService, h *hub.Hub) *RoomHandler {
	if collab == nil {
		panic("CollabService cannot be nil for RoomHandler")
	}
	return &RoomHandler{collab: collab, hub: h}
}

// RoomPreviewResponse describes a live room without exposing its
// project data or member identities.
type RoomPreviewResponse struct {
	RoomID      string    `json:"room_id"`
	Code        string    `json:"code"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetRoomByCode serves GET /api/rooms/:code.
func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	code := c.Param("code")
	snap, err := h.collab.GetRoomByCode(code)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Room not found")
			return
		}
		logrus.WithError(err).WithField("code", code).Error("Handler.GetRoomByCode: lookup failed")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to look up room")
		return
	}

	SuccessResponse(c, http.StatusOK, RoomPreviewResponse{
		RoomID:      snap.ID,
		Code:        snap.Code,
		MemberCount: len(snap.Members),
		CreatedAt:   snap.CreatedAt,
	})
}

// StatsResponse reports live broker counters.
type StatsResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// GetStats serves GET /api/stats.
func (h *RoomHandler) GetStats(c *gin.Context) {
	rooms, connections := h.hub.Stats()
	SuccessResponse(c, http.StatusOK, StatsResponse{Rooms: rooms, Connections: connections})
}
