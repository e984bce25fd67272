package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Store defines the persistence contract backing the catalog and the ledger.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	ListExperimentsByStatus(ctx context.Context, status Status) ([]*Experiment, error)
	UpdateExperiment(ctx context.Context, exp *Experiment) error

	// Assignment operations

	// InsertAssignmentIfAbsent atomically stores a unless a record already
	// exists for (ExperimentID, SubjectKey). It returns the stored record and
	// whether this call created it.
	InsertAssignmentIfAbsent(ctx context.Context, a *Assignment) (*Assignment, bool, error)
	GetAssignment(ctx context.Context, experimentID, subjectKey string) (*Assignment, error)
	// RecordConversion applies c to the existing record, returning ErrNotFound
	// when there is none.
	RecordConversion(ctx context.Context, experimentID, subjectKey string, c Conversion) (*Assignment, error)
	ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error)

	// Lifecycle
	Close() error
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
