// Package engine is the call-site facade over the catalog, ledger, analyzer
// and exporter. Its request-time methods never return errors: failures are
// logged and reported as "no variant" so instrumented code keeps working.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/w3bsuki/strike-ab/internal/bucketing"
	"github.com/w3bsuki/strike-ab/internal/catalog"
	"github.com/w3bsuki/strike-ab/internal/events"
	"github.com/w3bsuki/strike-ab/internal/ledger"
	"github.com/w3bsuki/strike-ab/internal/report"
	"github.com/w3bsuki/strike-ab/internal/stats"
	"github.com/w3bsuki/strike-ab/internal/store"
)

type Engine struct {
	store    store.Store
	catalog  *catalog.Catalog
	ledger   *ledger.Ledger
	analyzer *stats.Analyzer
	exporter *report.Exporter
	logger   *slog.Logger
}

type options struct {
	sink   events.Sink
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*options)

// WithSink sets where assignment and conversion events go.
func WithSink(s events.Sink) Option {
	return func(o *options) { o.sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New(s store.Store, opts ...Option) *Engine {
	o := options{
		sink:   events.Nop,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		store:    s,
		catalog:  catalog.New(s, catalog.WithLogger(o.logger), catalog.WithClock(o.now)),
		ledger:   ledger.New(s, ledger.WithSink(o.sink), ledger.WithLogger(o.logger), ledger.WithClock(o.now)),
		analyzer: stats.NewAnalyzer(s),
		exporter: report.NewExporter(s, report.WithClock(o.now)),
		logger:   o.logger,
	}
}

// Catalog exposes authoring operations (create, lifecycle).
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Ledger exposes raw assignment lookups.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// GetVariant returns the identity's variant, or nil when none applies or
// the lookup failed.
func (e *Engine) GetVariant(ctx context.Context, experimentID string, id ledger.Identity, attrs bucketing.Attributes) *ledger.Decision {
	d, err := e.ledger.GetOrAssign(ctx, experimentID, id, attrs)
	if err != nil {
		e.logger.Error("variant assignment failed", "experiment_id", experimentID, "error", err)
		return nil
	}
	return d
}

// TrackConversion attaches an outcome to the identity's assignment. It
// reports whether anything was recorded; unassigned identities are a no-op.
func (e *Engine) TrackConversion(ctx context.Context, experimentID string, id ledger.Identity, c ledger.Conversion) bool {
	ok, err := e.ledger.RecordConversion(ctx, experimentID, id, c)
	if err != nil {
		e.logger.Error("conversion tracking failed", "experiment_id", experimentID, "error", err)
		return false
	}
	if !ok {
		e.logger.Debug("conversion without assignment ignored", "experiment_id", experimentID)
	}
	return ok
}

// GetAnalysis returns store.ErrNotFound for unknown experiments.
func (e *Engine) GetAnalysis(ctx context.Context, experimentID string) (*stats.Analysis, error) {
	return e.analyzer.Analyze(ctx, experimentID)
}

// ListActiveExperiments returns running experiments.
func (e *Engine) ListActiveExperiments(ctx context.Context) ([]*store.Experiment, error) {
	return e.catalog.ListRunning(ctx)
}

func (e *Engine) ExportSnapshot(ctx context.Context, experimentID string) (*report.Snapshot, error) {
	return e.exporter.Export(ctx, experimentID)
}

func (e *Engine) ExportAll(ctx context.Context) ([]*report.Snapshot, error) {
	return e.exporter.ExportAll(ctx)
}

func (e *Engine) Close() error {
	return e.store.Close()
}
