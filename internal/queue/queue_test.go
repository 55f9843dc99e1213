package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

// fakeEnqueuer records enqueued tasks instead of talking to Redis
type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-" + task.Type(), Queue: QueueBatch}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClassifyBatchPayload(t *testing.T) {
	payload := ClassifyBatchPayload{
		JobID: "job-123",
		Texts: []string{"first text", "second text"},
	}

	data, err := json.Marshal(payload)
	assert.NoError(t, err)

	var decoded ClassifyBatchPayload
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, payload.JobID, decoded.JobID)
	assert.Equal(t, payload.Texts, decoded.Texts)
	assert.NotContains(t, string(data), "trace_id", "empty trace fields are omitted")
}

func TestEnqueueClassifyBatch(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake}

	taskID, err := client.EnqueueClassifyBatch(context.Background(), "job-1", []string{"a text", "another text"})
	require.NoError(t, err)
	assert.Equal(t, "task-"+TypeClassifyBatch, taskID)

	require.Len(t, fake.tasks, 1)
	task := fake.tasks[0]
	assert.Equal(t, TypeClassifyBatch, task.Type())

	var payload ClassifyBatchPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "job-1", payload.JobID)
	assert.Equal(t, []string{"a text", "another text"}, payload.Texts)
	assert.Greater(t, payload.EnqueuedAt, int64(0))
	assert.Empty(t, payload.TraceID, "no span in context")
}

func TestEnqueueClassifyBatchCapturesTrace(t *testing.T) {
	tp := tracesdk.NewTracerProvider()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := tp.Tracer("test").Start(context.Background(), "api.batch")
	defer span.End()

	fake := &fakeEnqueuer{}
	client := &Client{client: fake}
	_, err := client.EnqueueClassifyBatch(ctx, "job-traced", []string{"text"})
	require.NoError(t, err)

	var payload ClassifyBatchPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	assert.Equal(t, span.SpanContext().TraceID().String(), payload.TraceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), payload.SpanID)
}

func TestEnqueueClassifyBatchValidation(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{}}

	_, err := client.EnqueueClassifyBatch(context.Background(), "job", nil)
	assert.True(t, errors.Is(err, ErrEmptyBatch))

	tooMany := make([]string, MaxBatchSize+1)
	_, err = client.EnqueueClassifyBatch(context.Background(), "job", tooMany)
	assert.Error(t, err)
}

func TestEnqueueClassifyBatchError(t *testing.T) {
	client := &Client{client: &fakeEnqueuer{err: errors.New("redis down")}}

	_, err := client.EnqueueClassifyBatch(context.Background(), "job", []string{"text"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "redis down"))
}

func TestRetryDelay(t *testing.T) {
	task := asynq.NewTask(TypeClassifyBatch, []byte(`{}`))
	testErr := errors.New("database is locked")

	expected := []time.Duration{
		10 * time.Second,
		1 * time.Minute,
		5 * time.Minute,
		5 * time.Minute,
		5 * time.Minute,
	}

	for i, want := range expected {
		assert.Equal(t, want, retryDelay(i, testErr, task), "Retry %d should have delay %v", i, want)
	}
}

func TestIsSkipRetry(t *testing.T) {
	assert.True(t, isSkipRetry(asynq.SkipRetry))
	assert.True(t, isSkipRetry(errors.Join(errors.New("bad payload"), asynq.SkipRetry)))
	assert.False(t, isSkipRetry(errors.New("transient")))
}
