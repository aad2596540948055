package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/PRISSET/Dev-Planner/internal/domain"
	"github.com/PRISSET/Dev-Planner/internal/repository"
)

// GormJournalRepository is the GORM implementation of
// repository.JournalRepository.
type GormJournalRepository struct {
	db *gorm.DB
}

// NewGormJournalRepository creates a GormJournalRepository.
func NewGormJournalRepository(db *gorm.DB) *GormJournalRepository {
	if db == nil {
		panic("database connection cannot be nil for GormJournalRepository")
	}
	return &GormJournalRepository{db: db}
}

func (r *GormJournalRepository) Save(ctx context.Context, event *domain.SessionEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save session event (room %s, type %s): %w", event.RoomID, event.EventType, err)
	}
	return nil
}

func (r *GormJournalRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&domain.SessionEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: prune session events before %s: %w", cutoff.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}
