package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/w3bsuki/strike-ab/internal/bucketing"
	"github.com/w3bsuki/strike-ab/internal/events"
	"github.com/w3bsuki/strike-ab/internal/store"
)

// Identity is who the request is for. SessionID is always expected; UserID
// is set once the visitor is known.
type Identity struct {
	UserID    string
	SessionID string
}

// Key is the bucketing and dedup key: the user id when known, else the
// session id.
func (i Identity) Key() string {
	return bucketing.Identifier(i.UserID, i.SessionID)
}

// Decision is the variant an identity sees.
type Decision struct {
	ExperimentID string         `json:"experiment_id"`
	VariantID    string         `json:"variant_id"`
	VariantName  string         `json:"variant_name"`
	Config       map[string]any `json:"config"`
	AssignedAt   time.Time      `json:"assigned_at"`
	New          bool           `json:"-"` // this call created the assignment
}

// Conversion is the outcome reported for an assigned identity.
type Conversion struct {
	Value    *float64
	Metadata map[string]any
}

// Ledger records one assignment per identity per experiment and attaches
// conversions to it.
type Ledger struct {
	store  store.Store
	sink   events.Sink
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Ledger)

func WithSink(s events.Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  s,
		sink:   events.Nop,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetOrAssign returns the identity's variant, assigning one on first sight.
// A nil Decision with a nil error means "no variant": the experiment is
// unknown, not running, outside its schedule, or the identity is not
// eligible. Errors are only returned for persistence failures.
func (l *Ledger) GetOrAssign(ctx context.Context, experimentID string, id Identity, attrs bucketing.Attributes) (*Decision, error) {
	key := id.Key()
	if key == "" {
		return nil, nil
	}

	exp, err := l.store.GetExperiment(ctx, experimentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	now := l.now()
	if !exp.ActiveAt(now) || !bucketing.Eligible(exp, key, attrs) {
		return nil, nil
	}

	existing, err := l.store.GetAssignment(ctx, experimentID, key)
	if err == nil {
		return decisionFor(exp, existing, false), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	variant := bucketing.Allocate(exp, key)
	if variant == nil {
		return nil, nil
	}

	stored, created, err := l.store.InsertAssignmentIfAbsent(ctx, &store.Assignment{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		VariantID:    variant.ID,
		SubjectKey:   key,
		UserID:       id.UserID,
		SessionID:    id.SessionID,
		AssignedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store assignment: %w", err)
	}

	if created {
		l.emit(ctx, events.ExperimentAssignment, events.Properties{
			"experimentId": experimentID,
			"variantId":    stored.VariantID,
			"userId":       stored.UserID,
			"sessionId":    stored.SessionID,
		})
	}

	return decisionFor(exp, stored, created), nil
}

// RecordConversion marks the identity's assignment as converted. It returns
// false without touching anything when the identity was never assigned.
// A later conversion replaces the earlier value rather than adding to it.
func (l *Ledger) RecordConversion(ctx context.Context, experimentID string, id Identity, c Conversion) (bool, error) {
	key := id.Key()
	if key == "" {
		return false, nil
	}

	a, err := l.store.RecordConversion(ctx, experimentID, key, store.Conversion{
		Value:    c.Value,
		Metadata: c.Metadata,
		At:       l.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record conversion: %w", err)
	}

	props := make(events.Properties, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		props[k] = v
	}
	props["experimentId"] = experimentID
	props["variantId"] = a.VariantID
	props["userId"] = a.UserID
	props["sessionId"] = a.SessionID
	if c.Value != nil {
		props["value"] = *c.Value
	}
	l.emit(ctx, events.ExperimentConversion, props)

	return true, nil
}

// Assignment returns the stored record for an identity, or store.ErrNotFound.
func (l *Ledger) Assignment(ctx context.Context, experimentID string, id Identity) (*store.Assignment, error) {
	return l.store.GetAssignment(ctx, experimentID, id.Key())
}

// Assignments lists every assignment made for an experiment.
func (l *Ledger) Assignments(ctx context.Context, experimentID string) ([]*store.Assignment, error) {
	return l.store.ListAssignments(ctx, experimentID)
}

// emit never lets a sink failure reach the caller.
func (l *Ledger) emit(ctx context.Context, name string, props events.Properties) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event sink panicked", "event", name, "panic", r)
		}
	}()

	if err := l.sink.Emit(ctx, name, props); err != nil {
		l.logger.Warn("event sink failed", "event", name, "experiment_id", props["experimentId"], "error", err)
	}
}

func decisionFor(exp *store.Experiment, a *store.Assignment, created bool) *Decision {
	d := &Decision{
		ExperimentID: exp.ID,
		VariantID:    a.VariantID,
		AssignedAt:   a.AssignedAt,
		New:          created,
	}
	if v := exp.Variant(a.VariantID); v != nil {
		d.VariantName = v.Name
		d.Config = v.Config
	}
	return d
}
