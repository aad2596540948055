package repository

import (
	"context"
	"time"

	"github.com/PRISSET/Dev-Planner/internal/domain"
)

// JournalRepository stores session lifecycle events. Implementations
// map storage-specific failures to the sentinel errors in this package.
type JournalRepository interface {
	// Save persists one event.
	Save(ctx context.Context, event *domain.SessionEvent) error

	// DeleteOlderThan prunes events recorded before the cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
