package database

import (
	"fmt"
	"log/slog"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// schemaVersionSQL is applied before any migration
const schemaVersionSQL = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
`

// migrations use types both SQLite and PostgreSQL accept
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_predictions_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS predictions (
				id TEXT PRIMARY KEY,
				job_id TEXT,
				position INTEGER NOT NULL DEFAULT 0,
				text TEXT NOT NULL,
				outcome TEXT NOT NULL,
				score DOUBLE PRECISION NOT NULL DEFAULT 0,
				remark TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
			CREATE INDEX IF NOT EXISTS idx_predictions_job_id ON predictions(job_id);
			CREATE INDEX IF NOT EXISTS idx_predictions_outcome ON predictions(outcome);
		`,
	},
	{
		Version: 2,
		Name:    "create_batch_jobs_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS batch_jobs (
				id TEXT PRIMARY KEY,
				task_id TEXT,
				status TEXT NOT NULL,
				total INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				created_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status);
		`,
	},
	{
		Version: 3,
		Name:    "create_training_runs_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS training_runs (
				id TEXT PRIMARY KEY,
				corpus_path TEXT NOT NULL,
				artifact_dir TEXT NOT NULL,
				samples INTEGER NOT NULL,
				train_size INTEGER NOT NULL,
				test_size INTEGER NOT NULL,
				vocabulary_size INTEGER NOT NULL,
				accuracy DOUBLE PRECISION NOT NULL,
				report TEXT NOT NULL,
				started_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_training_runs_completed_at ON training_runs(completed_at);
		`,
	},
	{
		Version: 4,
		Name:    "unique_job_prediction_position",
		SQL: `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_predictions_job_position ON predictions(job_id, position);
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	slog.Debug("current schema version", "version", currentVersion, "driver", db.driver)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(db.rebind("INSERT INTO schema_version (version) VALUES (?)"), migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}

// SchemaVersion returns the highest applied migration
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
