package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/PRISSET/Dev-Planner/internal/domain"
)

// Task type names.
const (
	TypeJournalRecord = "journal:record"
	TypeJournalPrune  = "journal:prune"
	TypeRoomSweep     = "room:sweep"
)

// JournalRecordPayload carries one session event to the worker.
type JournalRecordPayload struct {
	Event domain.SessionEvent
}

// NewJournalRecordTask creates a journal:record task for the event.
func NewJournalRecordTask(event domain.SessionEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(JournalRecordPayload{Event: event})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeJournalRecord, payload), nil
}

// NewRoomSweepTask creates the periodic idle-room sweep task. It has
// no payload; the worker asks the hub for idle rooms at run time.
func NewRoomSweepTask() *asynq.Task {
	return asynq.NewTask(TypeRoomSweep, nil)
}

// NewJournalPruneTask creates the periodic journal retention task.
func NewJournalPruneTask() *asynq.Task {
	return asynq.NewTask(TypeJournalPrune, nil)
}
