package worker

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/domain"
	"github.com/PRISSET/Dev-Planner/internal/tasks"
)

// AsynqJournal implements hub.Journal by enqueueing journal:record
// tasks. Enqueueing happens off the caller's goroutine so the hub loop
// never waits on Redis.
type AsynqJournal struct {
	client *asynq.Client
}

// NewAsynqJournal creates an AsynqJournal.
func NewAsynqJournal(client *asynq.Client) *AsynqJournal {
	if client == nil {
		panic("asynq client cannot be nil for AsynqJournal")
	}
	return &AsynqJournal{client: client}
}

// Record enqueues the event for persistence. Best effort: a full or
// unreachable queue only logs.
func (j *AsynqJournal) Record(event domain.SessionEvent) {
	task, err := tasks.NewJournalRecordTask(event)
	if err != nil {
		logrus.WithError(err).Error("Failed to build journal task")
		return
	}
	go func() {
		if _, err := j.client.Enqueue(task, asynq.Queue("low")); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"room_id":    event.RoomID,
				"event_type": event.EventType,
			}).Warn("Failed to enqueue journal task")
		}
	}()
}
