package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zombar/textdetector/internal/inference"
	"github.com/zombar/textdetector/internal/metrics"
	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/remarks"
)

// Store is the persistence the worker needs
type Store interface {
	UpdateJobStatus(ctx context.Context, id, status, errMsg string) error
	SavePredictions(ctx context.Context, predictions []*models.Prediction) error
}

// Worker wraps the Asynq server for processing tasks
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	runner      *inference.Runner
	store       Store
	remarks     *remarks.Catalog
	metrics     *metrics.Metrics
	concurrency int
	logger      *slog.Logger
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// NewWorker creates a new queue worker
func NewWorker(
	cfg WorkerConfig,
	runner *inference.Runner,
	store Store,
	catalog *remarks.Catalog,
	m *metrics.Metrics,
) *Worker {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	w := &Worker{
		mux:         asynq.NewServeMux(),
		runner:      runner,
		store:       store,
		remarks:     catalog,
		metrics:     m,
		concurrency: cfg.Concurrency,
		logger:      slog.Default(),
	}

	serverCfg := asynq.Config{
		// Concurrency determines how many tasks can be processed simultaneously
		Concurrency: cfg.Concurrency,

		Queues: map[string]int{
			QueueBatch: 1,
		},

		RetryDelayFunc: retryDelay,

		// Graceful shutdown timeout
		ShutdownTimeout: 30 * time.Second,

		ErrorHandler: asynq.ErrorHandlerFunc(w.handleError),
	}

	w.server = asynq.NewServer(redisOpt, serverCfg)
	w.registerHandlers()

	return w
}

// registerHandlers registers all task handlers with the worker
func (w *Worker) registerHandlers() {
	w.mux.HandleFunc(TypeClassifyBatch, w.handleClassifyBatch)
}

// Start starts the worker to begin processing tasks
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queue", QueueBatch,
	)

	// Run is blocking - starts processing tasks
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}

// Server returns the underlying Asynq server (for testing)
func (w *Worker) Server() *asynq.Server {
	return w.server
}

// handleError logs task failures and marks a job failed once its retries are
// exhausted
func (w *Worker) handleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	w.logger.Error("task processing error",
		"task_type", task.Type(),
		"error", err,
		"retry_count", retried,
		"max_retries", maxRetry,
	)

	if retried < maxRetry && !isSkipRetry(err) {
		return
	}

	var payload ClassifyBatchPayload
	if json.Unmarshal(task.Payload(), &payload) != nil || payload.JobID == "" {
		return
	}
	if err := w.store.UpdateJobStatus(ctx, payload.JobID, models.JobStatusFailed, err.Error()); err != nil {
		w.logger.Error("failed to mark job failed", "job_id", payload.JobID, "error", err)
	}
	w.metrics.ObserveBatch(models.JobStatusFailed, len(payload.Texts))
}

var retryDelays = []time.Duration{
	10 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
}

// retryDelay backs off 10s, 1m, then 5m for every later attempt
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < len(retryDelays) {
		return retryDelays[n]
	}
	return retryDelays[len(retryDelays)-1]
}
