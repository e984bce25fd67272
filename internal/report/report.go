// Package report produces point-in-time snapshots of experiments for export.
package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w3bsuki/strike-ab/internal/stats"
	"github.com/w3bsuki/strike-ab/internal/store"
)

// DefaultConcurrency bounds the number of experiments ExportAll reads at once.
const DefaultConcurrency = 4

// Snapshot is everything known about one experiment at ExportedAt.
type Snapshot struct {
	Experiment  *store.Experiment   `json:"experiment"`
	Assignments []*store.Assignment `json:"assignments"`
	Analysis    *stats.Analysis     `json:"analysis"`
	ExportedAt  time.Time           `json:"exportedAt"`
}

type Exporter struct {
	store       store.Store
	concurrency int
	now         func() time.Time
}

type Option func(*Exporter)

func WithConcurrency(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

func NewExporter(s store.Store, opts ...Option) *Exporter {
	e := &Exporter{
		store:       s,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export reads one experiment. It returns store.ErrNotFound for unknown ids
// and never writes.
func (e *Exporter) Export(ctx context.Context, experimentID string) (*Snapshot, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	assignments, err := e.store.ListAssignments(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	if assignments == nil {
		assignments = []*store.Assignment{}
	}

	return &Snapshot{
		Experiment:  exp,
		Assignments: assignments,
		Analysis:    stats.Analyze(exp, assignments),
		ExportedAt:  e.now(),
	}, nil
}

// ExportAll snapshots every experiment, in catalog order.
func (e *Exporter) ExportAll(ctx context.Context) ([]*Snapshot, error) {
	exps, err := e.store.ListExperiments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	snapshots := make([]*Snapshot, len(exps))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, exp := range exps {
		i, exp := i, exp
		g.Go(func() error {
			snap, err := e.Export(gCtx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to export %s: %w", exp.ID, err)
			}
			snapshots[i] = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}
