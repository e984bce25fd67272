package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/w3bsuki/strike-ab/internal/store"
)

var (
	ErrInvalidDefinition      = errors.New("invalid experiment definition")
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// transitions lists the allowed lifecycle moves. completed is terminal.
var transitions = map[store.Status][]store.Status{
	store.StatusDraft:   {store.StatusRunning},
	store.StatusRunning: {store.StatusPaused, store.StatusCompleted},
	store.StatusPaused:  {store.StatusRunning, store.StatusCompleted},
}

// CanTransition reports whether an experiment may move from one status to
// another.
func CanTransition(from, to store.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Catalog owns experiment definitions and their lifecycle. It never touches
// assignments.
type Catalog struct {
	store    store.Store
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Catalog)

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

func New(s store.Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:    s,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create validates def and stores it as a draft, returning its id. An empty
// id gets a generated one.
func (c *Catalog) Create(ctx context.Context, def *store.Experiment) (string, error) {
	if def == nil {
		return "", fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if err := c.Validate(def); err != nil {
		return "", err
	}

	exp := def.Clone()
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	now := c.now()
	exp.Status = store.StatusDraft
	exp.CreatedAt = now
	exp.UpdatedAt = now

	if err := c.store.CreateExperiment(ctx, exp); err != nil {
		return "", err
	}

	c.logger.Info("experiment created", "experiment_id", exp.ID, "variants", len(exp.Variants))
	return exp.ID, nil
}

// Validate checks a definition without storing it.
func (c *Catalog) Validate(def *store.Experiment) error {
	if err := c.validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	seen := make(map[string]bool, len(def.Variants))
	total := 0
	for _, v := range def.Variants {
		if seen[v.ID] {
			return fmt.Errorf("%w: duplicate variant id %q", ErrInvalidDefinition, v.ID)
		}
		seen[v.ID] = true
		total += v.Weight
	}
	if total == 0 {
		return fmt.Errorf("%w: variant weights sum to zero", ErrInvalidDefinition)
	}
	if def.EndDate != nil && !def.StartDate.IsZero() && !def.EndDate.After(def.StartDate) {
		return fmt.Errorf("%w: endDate must be after startDate", ErrInvalidDefinition)
	}
	return nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*store.Experiment, error) {
	return c.store.GetExperiment(ctx, id)
}

func (c *Catalog) List(ctx context.Context) ([]*store.Experiment, error) {
	return c.store.ListExperiments(ctx)
}

// ListRunning returns experiments currently accepting assignments.
func (c *Catalog) ListRunning(ctx context.Context) ([]*store.Experiment, error) {
	return c.store.ListExperimentsByStatus(ctx, store.StatusRunning)
}

// SetStatus moves an experiment through its lifecycle. Completing stamps
// EndDate; the first activation stamps StartDate when it was left empty.
func (c *Catalog) SetStatus(ctx context.Context, id string, status store.Status) (*store.Experiment, error) {
	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(exp.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, exp.Status, status)
	}

	now := c.now()
	from := exp.Status
	exp.Status = status
	exp.UpdatedAt = now
	switch status {
	case store.StatusRunning:
		if exp.StartDate.IsZero() {
			exp.StartDate = now
		}
	case store.StatusCompleted:
		exp.EndDate = &now
	}

	if err := c.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, fmt.Errorf("failed to update experiment: %w", err)
	}

	c.logger.Info("experiment status changed", "experiment_id", id, "from", from, "to", status)
	return exp, nil
}

func (c *Catalog) Activate(ctx context.Context, id string) (*store.Experiment, error) {
	return c.SetStatus(ctx, id, store.StatusRunning)
}

func (c *Catalog) Pause(ctx context.Context, id string) (*store.Experiment, error) {
	return c.SetStatus(ctx, id, store.StatusPaused)
}

// Resume restarts a paused experiment. Unlike Activate it refuses drafts.
func (c *Catalog) Resume(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusPaused {
		return nil, fmt.Errorf("%w: resume from %s", ErrInvalidStateTransition, exp.Status)
	}
	return c.SetStatus(ctx, id, store.StatusRunning)
}

func (c *Catalog) Complete(ctx context.Context, id string) (*store.Experiment, error) {
	return c.SetStatus(ctx, id, store.StatusCompleted)
}
