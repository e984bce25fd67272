package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    variants TEXT NOT NULL,
    targeting TEXT NOT NULL,
    metrics TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    start_date BIGINT NOT NULL DEFAULT 0,
    end_date BIGINT,
    minimum_sample_size INTEGER NOT NULL DEFAULT 0,
    statistical_significance DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL REFERENCES experiments(id),
    subject_key TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    assigned_at BIGINT NOT NULL,
    converted BOOLEAN NOT NULL DEFAULT FALSE,
    conversion_value DOUBLE PRECISION,
    converted_at BIGINT,
    metadata TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_subject ON assignments(experiment_id, subject_key);
CREATE INDEX IF NOT EXISTS idx_assignments_variant ON assignments(experiment_id, variant_id);
`

// OpenPostgres connects to a Postgres database and applies the schema. This
// is the backend for multi-instance deployments.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return newSQLStore(db, DialectPostgres, postgresSchema)
}
