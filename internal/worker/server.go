package worker

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/PRISSET/Dev-Planner/internal/hub"
	"github.com/PRISSET/Dev-Planner/internal/repository"
	"github.com/PRISSET/Dev-Planner/internal/tasks"
)

// WorkerServer wraps the asynq server that runs the journal and sweep
// tasks. The journal handlers are registered only when a repository is
// available; the sweep handler only when a TTL is configured.
type WorkerServer struct {
	server      *asynq.Server
	log         *logrus.Entry
	journalRepo repository.JournalRepository
	hub         *hub.Hub
	idleTTL     time.Duration
	retention   time.Duration
}

// NewWorkerServer creates a WorkerServer. journalRepo may be nil when
// no database is configured.
func NewWorkerServer(redisOpt asynq.RedisClientOpt, journalRepo repository.JournalRepository, h *hub.Hub, idleTTL, retention time.Duration, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:      server,
		log:         logEntry,
		journalRepo: journalRepo,
		hub:         h,
		idleTTL:     idleTTL,
		retention:   retention,
	}
}

// Start runs the worker server. Call it in its own goroutine.
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()

	if ws.journalRepo != nil {
		journalHandler := NewJournalHandler(ws.journalRepo, ws.retention)
		mux.HandleFunc(tasks.TypeJournalRecord, journalHandler.ProcessRecord)
		mux.HandleFunc(tasks.TypeJournalPrune, journalHandler.ProcessPrune)
	}
	if ws.idleTTL > 0 {
		sweepHandler := NewSweepHandler(ws.hub, ws.idleTTL)
		mux.HandleFunc(tasks.TypeRoomSweep, sweepHandler.ProcessTask)
	}

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		}
		ws.log.Info("Worker server stopped")
	}
}

// Shutdown gracefully stops the worker server.
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
}
