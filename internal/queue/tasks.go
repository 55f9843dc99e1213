package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/tracing"
)

// handleClassifyBatch classifies every text of a batch job and stores the
// predictions in input order. Per-text failures are stored as failed
// predictions; only storage errors fail the task.
func (w *Worker) handleClassifyBatch(ctx context.Context, t *asynq.Task) error {
	var payload ClassifyBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" || len(payload.Texts) == 0 {
		return fmt.Errorf("invalid task payload: missing job id or texts: %w", asynq.SkipRetry)
	}

	var queueWaitTime time.Duration
	if payload.EnqueuedAt > 0 {
		queueWaitTime = time.Since(time.Unix(0, payload.EnqueuedAt))
	}

	ctx, span := taskSpan(ctx, payload, queueWaitTime)
	defer span.End()

	w.logger.InfoContext(ctx, "processing batch",
		"job_id", payload.JobID,
		"texts", len(payload.Texts),
		"queue_wait_seconds", queueWaitTime.Seconds(),
	)

	if err := w.store.UpdateJobStatus(ctx, payload.JobID, models.JobStatusProcessing, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	results := w.runner.ClassifyBatch(ctx, payload.Texts)

	now := time.Now()
	predictions := make([]*models.Prediction, len(results))
	failed := 0
	for i, res := range results {
		if res.Outcome.IsFailed() {
			failed++
		}
		predictions[i] = &models.Prediction{
			ID:        PredictionID(payload.JobID, i),
			JobID:     payload.JobID,
			Position:  i,
			Text:      payload.Texts[i],
			Outcome:   res.Outcome,
			Score:     res.Score,
			Remark:    w.remarks.For(res.Outcome),
			CreatedAt: now,
		}
	}

	if err := w.store.SavePredictions(ctx, predictions); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to save predictions: %w", err)
	}

	if err := w.store.UpdateJobStatus(ctx, payload.JobID, models.JobStatusCompleted, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	w.metrics.ObserveBatch(models.JobStatusCompleted, len(payload.Texts))
	span.SetAttributes(attribute.Int("batch.failed", failed))
	w.logger.InfoContext(ctx, "batch completed",
		"job_id", payload.JobID,
		"texts", len(payload.Texts),
		"failed", failed,
	)
	return nil
}

// PredictionID names the prediction at a position of a batch job. A retried
// job reuses the same IDs, so stores and indexes overwrite instead of
// duplicating.
func PredictionID(jobID string, position int) string {
	return fmt.Sprintf("%s-%d", jobID, position)
}

// taskSpan starts the consumer span of a task. When the payload carries the
// enqueuing span's IDs the new span continues that trace.
func taskSpan(ctx context.Context, payload ClassifyBatchPayload, wait time.Duration) (context.Context, trace.Span) {
	if payload.TraceID != "" && payload.SpanID != "" {
		traceID, terr := trace.TraceIDFromHex(payload.TraceID)
		spanID, serr := trace.SpanIDFromHex(payload.SpanID)
		if terr == nil && serr == nil {
			remote := trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    traceID,
				SpanID:     spanID,
				TraceFlags: trace.FlagsSampled,
				Remote:     true,
			})
			ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
		}
	}

	ctx, span := tracing.Tracer().Start(ctx, "asynq.task.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("task.type", TypeClassifyBatch),
			attribute.String("job.id", payload.JobID),
			attribute.Int("batch.size", len(payload.Texts)),
			attribute.Float64("queue.wait_time_seconds", wait.Seconds()),
			attribute.Int64("enqueued_at", payload.EnqueuedAt),
		),
	)
	span.AddEvent("task_processing_started", trace.WithAttributes(
		attribute.Float64("wait_time_seconds", wait.Seconds()),
	))
	return ctx, span
}

func isSkipRetry(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}
