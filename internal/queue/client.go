package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Task type constants
const (
	TypeClassifyBatch = "textdetector:classify_batch"
)

// QueueBatch is the queue batch classification tasks run on
const QueueBatch = "batch-classification"

// MaxBatchSize bounds the number of texts in one task
const MaxBatchSize = 1000

// ErrEmptyBatch is returned when a batch has no texts
var ErrEmptyBatch = errors.New("batch has no texts")

// ClassifyBatchPayload represents the payload for batch classification
type ClassifyBatchPayload struct {
	JobID string   `json:"job_id"`
	Texts []string `json:"texts"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// enqueuer is the part of asynq.Client the queue client uses
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client enqueuer
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// EnqueueClassifyBatch enqueues a batch classification task for jobID and
// returns the task ID
func (c *Client) EnqueueClassifyBatch(ctx context.Context, jobID string, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", ErrEmptyBatch
	}
	if len(texts) > MaxBatchSize {
		return "", fmt.Errorf("batch has %d texts, limit is %d", len(texts), MaxBatchSize)
	}

	payload := ClassifyBatchPayload{
		JobID:      jobID,
		Texts:      texts,
		EnqueuedAt: time.Now().UnixNano(), // Record enqueue time for queue wait metrics
	}

	// Add tracing context if available
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeClassifyBatch),
			attribute.String("job.id", jobID),
			attribute.Int("batch.size", len(texts)),
			attribute.Int64("enqueued_at", payload.EnqueuedAt),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeClassifyBatch, payloadBytes, asynq.TaskID(jobID))

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(5 * time.Minute),
		asynq.Queue(QueueBatch),
		asynq.Retention(24 * time.Hour), // Keep completed tasks for a day
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue classify batch task: %w", err)
	}

	return info.ID, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
