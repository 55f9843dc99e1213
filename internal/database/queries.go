package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/tracing"
)

func (db *DB) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", db.driver), attribute.String("db.operation", op))
	return tracing.StartSpan(ctx, "database."+op, attrs...)
}

func finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const insertPrediction = `
	INSERT INTO predictions (id, job_id, position, text, outcome, score, remark, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const selectPrediction = `SELECT id, job_id, position, text, outcome, score, remark, created_at FROM predictions`

// SavePrediction stores one prediction
func (db *DB) SavePrediction(ctx context.Context, p *models.Prediction) (err error) {
	ctx, span := db.startSpan(ctx, "save_prediction", attribute.String("prediction.id", p.ID))
	defer func() { finish(span, err) }()

	_, err = db.conn.ExecContext(ctx, db.rebind(insertPrediction), predictionArgs(p)...)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// SavePredictions stores a batch of predictions in one transaction. Rows
// already stored for a job in the batch are replaced, so a retried job
// never leaves duplicate positions behind.
func (db *DB) SavePredictions(ctx context.Context, predictions []*models.Prediction) (err error) {
	ctx, span := db.startSpan(ctx, "save_predictions", attribute.Int("predictions.count", len(predictions)))
	defer func() { finish(span, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	replaced := map[string]bool{}
	for _, p := range predictions {
		if p.JobID == "" || replaced[p.JobID] {
			continue
		}
		replaced[p.JobID] = true
		if _, err = tx.ExecContext(ctx, db.rebind("DELETE FROM predictions WHERE job_id = ?"), p.JobID); err != nil {
			return fmt.Errorf("failed to clear predictions of job %s: %w", p.JobID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(insertPrediction))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range predictions {
		if _, err = stmt.ExecContext(ctx, predictionArgs(p)...); err != nil {
			return fmt.Errorf("failed to insert prediction %s: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func predictionArgs(p *models.Prediction) []any {
	var jobID sql.NullString
	if p.JobID != "" {
		jobID = sql.NullString{String: p.JobID, Valid: true}
	}
	return []any{p.ID, jobID, p.Position, p.Text, p.Outcome.String(), p.Score, p.Remark, p.CreatedAt.UTC()}
}

// GetPrediction retrieves a prediction by ID
func (db *DB) GetPrediction(ctx context.Context, id string) (p *models.Prediction, err error) {
	ctx, span := db.startSpan(ctx, "get_prediction", attribute.String("prediction.id", id))
	defer func() { finish(span, err) }()

	row := db.conn.QueryRowContext(ctx, db.rebind(selectPrediction+" WHERE id = ?"), id)
	p, err = scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// ListPredictions retrieves predictions newest first with pagination
func (db *DB) ListPredictions(ctx context.Context, limit, offset int) (ps []*models.Prediction, err error) {
	ctx, span := db.startSpan(ctx, "list_predictions", attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer func() { finish(span, err) }()

	rows, err := db.conn.QueryContext(ctx,
		db.rebind(selectPrediction+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?"), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	return collectPredictions(rows)
}

// GetPredictionsByJob retrieves every prediction stored for a batch job, in
// input order
func (db *DB) GetPredictionsByJob(ctx context.Context, jobID string) (ps []*models.Prediction, err error) {
	ctx, span := db.startSpan(ctx, "get_predictions_by_job", attribute.String("job.id", jobID))
	defer func() { finish(span, err) }()

	rows, err := db.conn.QueryContext(ctx,
		db.rebind(selectPrediction+" WHERE job_id = ? ORDER BY position"), jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions by job: %w", err)
	}
	return collectPredictions(rows)
}

// CountPredictions returns the number of stored predictions per outcome
func (db *DB) CountPredictions(ctx context.Context) (counts map[string]int, err error) {
	ctx, span := db.startSpan(ctx, "count_predictions")
	defer func() { finish(span, err) }()

	rows, err := db.conn.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM predictions GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("failed to count predictions: %w", err)
	}
	defer rows.Close()

	counts = make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(s scanner) (*models.Prediction, error) {
	var (
		p       models.Prediction
		jobID   sql.NullString
		outcome string
	)
	if err := s.Scan(&p.ID, &jobID, &p.Position, &p.Text, &outcome, &p.Score, &p.Remark, &p.CreatedAt); err != nil {
		return nil, err
	}
	o, err := models.ParseOutcome(outcome)
	if err != nil {
		return nil, fmt.Errorf("prediction %s: %w", p.ID, err)
	}
	p.Outcome = o
	p.JobID = jobID.String
	return &p, nil
}

func collectPredictions(rows *sql.Rows) ([]*models.Prediction, error) {
	defer rows.Close()

	predictions := []*models.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return predictions, nil
}

// CreateJob stores a new batch job
func (db *DB) CreateJob(ctx context.Context, job *models.BatchJob) (err error) {
	ctx, span := db.startSpan(ctx, "create_job", attribute.String("job.id", job.ID))
	defer func() { finish(span, err) }()

	_, err = db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO batch_jobs (id, task_id, status, total, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), job.ID, job.TaskID, job.Status, job.Total, job.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// SetJobTaskID records the queue task ID once the job is enqueued
func (db *DB) SetJobTaskID(ctx context.Context, id, taskID string) (err error) {
	ctx, span := db.startSpan(ctx, "set_job_task_id", attribute.String("job.id", id))
	defer func() { finish(span, err) }()

	return db.updateJob(ctx, "UPDATE batch_jobs SET task_id = ? WHERE id = ?", taskID, id)
}

// UpdateJobStatus moves a job to status. Terminal statuses set completed_at.
func (db *DB) UpdateJobStatus(ctx context.Context, id, status, errMsg string) (err error) {
	ctx, span := db.startSpan(ctx, "update_job_status",
		attribute.String("job.id", id), attribute.String("job.status", status))
	defer func() { finish(span, err) }()

	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		return db.updateJob(ctx, "UPDATE batch_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?",
			status, errMsg, time.Now().UTC(), id)
	}
	return db.updateJob(ctx, "UPDATE batch_jobs SET status = ?, error = ? WHERE id = ?", status, errMsg, id)
}

func (db *DB) updateJob(ctx context.Context, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job: %w", ErrNotFound)
	}
	return nil
}

// GetJob retrieves a batch job by ID
func (db *DB) GetJob(ctx context.Context, id string) (job *models.BatchJob, err error) {
	ctx, span := db.startSpan(ctx, "get_job", attribute.String("job.id", id))
	defer func() { finish(span, err) }()

	var (
		j           models.BatchJob
		taskID      sql.NullString
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	err = db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, task_id, status, total, error, created_at, completed_at
		FROM batch_jobs
		WHERE id = ?
	`), id).Scan(&j.ID, &taskID, &j.Status, &j.Total, &errMsg, &j.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	j.TaskID = taskID.String
	j.Error = errMsg.String
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}

// SaveTrainingRun stores a completed training run
func (db *DB) SaveTrainingRun(ctx context.Context, run *models.TrainingRun) (err error) {
	ctx, span := db.startSpan(ctx, "save_training_run", attribute.String("run.id", run.ID))
	defer func() { finish(span, err) }()

	_, err = db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO training_runs (id, corpus_path, artifact_dir, samples, train_size, test_size,
			vocabulary_size, accuracy, report, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), run.ID, run.CorpusPath, run.ArtifactDir, run.Samples, run.TrainSize, run.TestSize,
		run.VocabularySize, run.Accuracy, run.Report, run.StartedAt.UTC(), run.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert training run: %w", err)
	}
	return nil
}

// ListTrainingRuns retrieves the most recent training runs
func (db *DB) ListTrainingRuns(ctx context.Context, limit int) (runs []*models.TrainingRun, err error) {
	ctx, span := db.startSpan(ctx, "list_training_runs", attribute.Int("limit", limit))
	defer func() { finish(span, err) }()

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, corpus_path, artifact_dir, samples, train_size, test_size,
			vocabulary_size, accuracy, report, started_at, completed_at
		FROM training_runs
		ORDER BY completed_at DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	runs = []*models.TrainingRun{}
	for rows.Next() {
		var r models.TrainingRun
		if err := rows.Scan(&r.ID, &r.CorpusPath, &r.ArtifactDir, &r.Samples, &r.TrainSize, &r.TestSize,
			&r.VocabularySize, &r.Accuracy, &r.Report, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}
