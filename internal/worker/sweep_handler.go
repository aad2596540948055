package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/hub"
)

// SweepHandler closes rooms that have been idle longer than the
// configured TTL. Teardown goes through the hub so members get the
// normal room_closed broadcast before being vacated.
type SweepHandler struct {
	hub     *hub.Hub
	idleTTL time.Duration
}

// NewSweepHandler creates a SweepHandler.
func NewSweepHandler(h *hub.Hub, idleTTL time.Duration) *SweepHandler {
	if h == nil {
		panic("Hub cannot be nil for SweepHandler")
	}
	return &SweepHandler{hub: h, idleTTL: idleTTL}
}

// ProcessTask handles room:sweep tasks.
func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	swept := h.hub.SweepIdleRooms(h.idleTTL)
	if swept > 0 {
		logrus.WithFields(logrus.Fields{
			"rooms":    swept,
			"idle_ttl": h.idleTTL.String(),
		}).Info("Queued idle rooms for expiry")
	}
	return nil
}
