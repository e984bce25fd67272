package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on top of sqlx for both SQLite and Postgres.
// Assignment uniqueness is enforced by the (experiment_id, subject_key)
// unique index, so concurrent processes sharing one database agree.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

type experimentRow struct {
	ID                      string        `db:"id"`
	Name                    string        `db:"name"`
	Description             string        `db:"description"`
	Variants                string        `db:"variants"`
	Targeting               string        `db:"targeting"`
	Metrics                 string        `db:"metrics"`
	Status                  string        `db:"status"`
	StartDate               int64         `db:"start_date"`
	EndDate                 sql.NullInt64 `db:"end_date"`
	MinimumSampleSize       int           `db:"minimum_sample_size"`
	StatisticalSignificance float64       `db:"statistical_significance"`
	CreatedAt               int64         `db:"created_at"`
	UpdatedAt               int64         `db:"updated_at"`
}

type assignmentRow struct {
	ID              string          `db:"id"`
	ExperimentID    string          `db:"experiment_id"`
	SubjectKey      string          `db:"subject_key"`
	VariantID       string          `db:"variant_id"`
	UserID          string          `db:"user_id"`
	SessionID       string          `db:"session_id"`
	AssignedAt      int64           `db:"assigned_at"`
	Converted       bool            `db:"converted"`
	ConversionValue sql.NullFloat64 `db:"conversion_value"`
	ConvertedAt     sql.NullInt64   `db:"converted_at"`
	Metadata        sql.NullString  `db:"metadata"`
}

const experimentColumns = `id, name, description, variants, targeting, metrics, status,
	start_date, end_date, minimum_sample_size, statistical_significance, created_at, updated_at`

const assignmentColumns = `id, experiment_id, subject_key, variant_id, user_id, session_id,
	assigned_at, converted, conversion_value, converted_at, metadata`

func newSQLStore(db *sqlx.DB, dialect Dialect, schema string) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Dialect reports which database the store talks to.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	row, err := toExperimentRow(exp)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO experiments (`+experimentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		row.ID, row.Name, row.Description, row.Variants, row.Targeting, row.Metrics, row.Status,
		row.StartDate, row.EndDate, row.MinimumSampleSize, row.StatisticalSignificance, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("experiment %q: %w", exp.ID, ErrAlreadyExists)
	}
	return nil
}

func (s *SQLStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	var row experimentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return row.toExperiment()
}

func (s *SQLStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.selectExperiments(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, id`)
}

func (s *SQLStore) ListExperimentsByStatus(ctx context.Context, status Status) ([]*Experiment, error) {
	return s.selectExperiments(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE status = ? ORDER BY created_at DESC, id`,
		string(status))
}

func (s *SQLStore) selectExperiments(ctx context.Context, query string, args ...any) ([]*Experiment, error) {
	var rows []experimentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	experiments := make([]*Experiment, 0, len(rows))
	for _, row := range rows {
		exp, err := row.toExperiment()
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, nil
}

func (s *SQLStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	row, err := toExperimentRow(exp)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE experiments SET name = ?, description = ?, variants = ?, targeting = ?, metrics = ?,
		 status = ?, start_date = ?, end_date = ?, minimum_sample_size = ?, statistical_significance = ?,
		 updated_at = ?
		 WHERE id = ?`),
		row.Name, row.Description, row.Variants, row.Targeting, row.Metrics,
		row.Status, row.StartDate, row.EndDate, row.MinimumSampleSize, row.StatisticalSignificance,
		row.UpdatedAt, row.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) InsertAssignmentIfAbsent(ctx context.Context, a *Assignment) (*Assignment, bool, error) {
	row, err := toAssignmentRow(a)
	if err != nil {
		return nil, false, err
	}

	// The unique index makes this a single compare-and-set; the loser of a
	// race reads back the winner's row below.
	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO assignments (`+assignmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (experiment_id, subject_key) DO NOTHING`),
		row.ID, row.ExperimentID, row.SubjectKey, row.VariantID, row.UserID, row.SessionID,
		row.AssignedAt, row.Converted, row.ConversionValue, row.ConvertedAt, row.Metadata,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	stored, err := s.GetAssignment(ctx, a.ExperimentID, a.SubjectKey)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (s *SQLStore) GetAssignment(ctx context.Context, experimentID, subjectKey string) (*Assignment, error) {
	var row assignmentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT `+assignmentColumns+` FROM assignments WHERE experiment_id = ? AND subject_key = ?`),
		experimentID, subjectKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return row.toAssignment()
}

func (s *SQLStore) RecordConversion(ctx context.Context, experimentID, subjectKey string, c Conversion) (*Assignment, error) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE experiment_id = ? AND subject_key = ?`
	if s.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}

	var row assignmentRow
	err = tx.GetContext(ctx, &row, tx.Rebind(query), experimentID, subjectKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	a, err := row.toAssignment()
	if err != nil {
		return nil, err
	}
	c.apply(a)

	updated, err := toAssignmentRow(a)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(
		`UPDATE assignments SET converted = ?, conversion_value = ?, converted_at = ?, metadata = ?
		 WHERE experiment_id = ? AND subject_key = ?`),
		updated.Converted, updated.ConversionValue, updated.ConvertedAt, updated.Metadata,
		experimentID, subjectKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversion: %w", err)
	}
	return a, nil
}

func (s *SQLStore) ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error) {
	var rows []assignmentRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT `+assignmentColumns+` FROM assignments WHERE experiment_id = ? ORDER BY assigned_at, id`),
		experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	assignments := make([]*Assignment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toAssignment()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func toExperimentRow(exp *Experiment) (*experimentRow, error) {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variants: %w", err)
	}
	targetingJSON, err := json.Marshal(exp.Targeting)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal targeting: %w", err)
	}
	metricsJSON, err := json.Marshal(exp.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	row := &experimentRow{
		ID:                      exp.ID,
		Name:                    exp.Name,
		Description:             exp.Description,
		Variants:                string(variantsJSON),
		Targeting:               string(targetingJSON),
		Metrics:                 string(metricsJSON),
		Status:                  string(exp.Status),
		StartDate:               unixMilli(exp.StartDate),
		MinimumSampleSize:       exp.MinimumSampleSize,
		StatisticalSignificance: exp.StatisticalSignificance,
		CreatedAt:               unixMilli(exp.CreatedAt),
		UpdatedAt:               unixMilli(exp.UpdatedAt),
	}
	if exp.EndDate != nil {
		row.EndDate = sql.NullInt64{Int64: unixMilli(*exp.EndDate), Valid: true}
	}
	return row, nil
}

func (r *experimentRow) toExperiment() (*Experiment, error) {
	exp := &Experiment{
		ID:                      r.ID,
		Name:                    r.Name,
		Description:             r.Description,
		Status:                  Status(r.Status),
		StartDate:               fromUnixMilli(r.StartDate),
		MinimumSampleSize:       r.MinimumSampleSize,
		StatisticalSignificance: r.StatisticalSignificance,
		CreatedAt:               fromUnixMilli(r.CreatedAt),
		UpdatedAt:               fromUnixMilli(r.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(r.Variants), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Targeting), &exp.Targeting); err != nil {
		return nil, fmt.Errorf("failed to unmarshal targeting: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Metrics), &exp.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if r.EndDate.Valid {
		end := fromUnixMilli(r.EndDate.Int64)
		exp.EndDate = &end
	}
	return exp, nil
}

func toAssignmentRow(a *Assignment) (*assignmentRow, error) {
	row := &assignmentRow{
		ID:           a.ID,
		ExperimentID: a.ExperimentID,
		SubjectKey:   a.SubjectKey,
		VariantID:    a.VariantID,
		UserID:       a.UserID,
		SessionID:    a.SessionID,
		AssignedAt:   unixMilli(a.AssignedAt),
		Converted:    a.Converted,
	}
	if a.ConversionValue != nil {
		row.ConversionValue = sql.NullFloat64{Float64: *a.ConversionValue, Valid: true}
	}
	if a.ConvertedAt != nil {
		row.ConvertedAt = sql.NullInt64{Int64: unixMilli(*a.ConvertedAt), Valid: true}
	}
	if len(a.Metadata) > 0 {
		metadataJSON, err := json.Marshal(a.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		row.Metadata = sql.NullString{String: string(metadataJSON), Valid: true}
	}
	return row, nil
}

func (r *assignmentRow) toAssignment() (*Assignment, error) {
	a := &Assignment{
		ID:           r.ID,
		ExperimentID: r.ExperimentID,
		SubjectKey:   r.SubjectKey,
		VariantID:    r.VariantID,
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		AssignedAt:   fromUnixMilli(r.AssignedAt),
		Converted:    r.Converted,
	}
	if r.ConversionValue.Valid {
		v := r.ConversionValue.Float64
		a.ConversionValue = &v
	}
	if r.ConvertedAt.Valid {
		t := fromUnixMilli(r.ConvertedAt.Int64)
		a.ConvertedAt = &t
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return a, nil
}
