package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/repository"
	"github.com/PRISSET/Dev-Planner/internal/tasks"
)

// JournalHandler persists session events and applies the retention
// policy.
type JournalHandler struct {
	repo      repository.JournalRepository
	retention time.Duration
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(repo repository.JournalRepository, retention time.Duration) *JournalHandler {
	if repo == nil {
		panic("JournalRepository cannot be nil for JournalHandler")
	}
	return &JournalHandler{repo: repo, retention: retention}
}

// ProcessRecord handles journal:record tasks.
func (h *JournalHandler) ProcessRecord(ctx context.Context, t *asynq.Task) error {
	var payload tasks.JournalRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.repo.Save(ctx, &payload.Event); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return fmt.Errorf("duplicate session event: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to save session event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"room_id":    payload.Event.RoomID,
		"event_type": payload.Event.EventType,
	}).Debug("Session event recorded")
	return nil
}

// ProcessPrune handles journal:prune tasks. Retention 0 keeps
// everything.
func (h *JournalHandler) ProcessPrune(ctx context.Context, t *asynq.Task) error {
	if h.retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.retention)
	removed, err := h.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}
	if removed > 0 {
		logrus.WithField("removed", removed).Info("Pruned session events past retention")
	}
	return nil
}
