package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3bsuki/strike-ab/internal/bucketing"
	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/ledger"
	"github.com/w3bsuki/strike-ab/internal/stats"
	"github.com/w3bsuki/strike-ab/internal/store"
	"github.com/w3bsuki/strike-ab/internal/testutil"
)

var now = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, s store.Store) (*engine.Engine, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return engine.New(s,
		engine.WithLogger(logger),
		engine.WithClock(func() time.Time { return now }),
	), &logs
}

func running(t *testing.T, e *engine.Engine, id string, weights ...int) {
	t.Helper()
	ctx := context.Background()
	_, err := e.Catalog().Create(ctx, testutil.Experiment(id, weights...))
	require.NoError(t, err)
	_, err = e.Catalog().Activate(ctx, id)
	require.NoError(t, err)
}

func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, testutil.SetupTestStore(t))
	running(t, e, "checkout-cta", 50, 50)

	for i := 0; i < 2000; i++ {
		id := ledger.Identity{UserID: fmt.Sprintf("user-%d", i), SessionID: fmt.Sprintf("s-%d", i)}
		d := e.GetVariant(ctx, "checkout-cta", id, bucketing.Attributes{})
		require.NotNil(t, d)

		// variant-1 converts twice as often as control
		every := 10
		if d.VariantID == "variant-1" {
			every = 5
		}
		if i%every == 0 {
			v := 20.0
			assert.True(t, e.TrackConversion(ctx, "checkout-cta", id, ledger.Conversion{Value: &v}))
		}
	}

	analysis, err := e.GetAnalysis(ctx, "checkout-cta")
	require.NoError(t, err)
	assert.Equal(t, 2000, analysis.TotalVisitors)
	assert.Equal(t, stats.StatusWinnerFound, analysis.Status)
	require.NotNil(t, analysis.Winner)
	assert.Equal(t, "variant-1", *analysis.Winner)

	snap, err := e.ExportSnapshot(ctx, "checkout-cta")
	require.NoError(t, err)
	assert.Len(t, snap.Assignments, 2000)
	assert.Equal(t, analysis.Status, snap.Analysis.Status)
}

func TestEngine_GetVariantIsSticky(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, store.NewMemoryStore())
	running(t, e, "hero", 34, 33, 33)

	id := ledger.Identity{SessionID: "sess-1"}
	first := e.GetVariant(ctx, "hero", id, bucketing.Attributes{})
	require.NotNil(t, first)
	assert.True(t, first.New)

	again := e.GetVariant(ctx, "hero", id, bucketing.Attributes{})
	require.NotNil(t, again)
	assert.False(t, again.New)
	assert.Equal(t, first.VariantID, again.VariantID)
}

func TestEngine_UnknownExperiment(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, store.NewMemoryStore())

	assert.Nil(t, e.GetVariant(ctx, "missing", ledger.Identity{UserID: "u"}, bucketing.Attributes{}))
	assert.False(t, e.TrackConversion(ctx, "missing", ledger.Identity{UserID: "u"}, ledger.Conversion{}))

	_, err := e.GetAnalysis(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = e.ExportSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_PausedKeepsHistory(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, store.NewMemoryStore())
	running(t, e, "pricing", 50, 50)

	known := ledger.Identity{UserID: "known"}
	require.NotNil(t, e.GetVariant(ctx, "pricing", known, bucketing.Attributes{}))

	_, err := e.Catalog().Pause(ctx, "pricing")
	require.NoError(t, err)

	assert.Nil(t, e.GetVariant(ctx, "pricing", ledger.Identity{UserID: "newcomer"}, bucketing.Attributes{}))
	assert.True(t, e.TrackConversion(ctx, "pricing", known, ledger.Conversion{}))

	a, err := e.Ledger().Assignment(ctx, "pricing", known)
	require.NoError(t, err)
	assert.True(t, a.Converted)
}

func TestEngine_ListActiveExperiments(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, store.NewMemoryStore())
	running(t, e, "live", 50, 50)
	_, err := e.Catalog().Create(ctx, testutil.Experiment("draft", 50, 50))
	require.NoError(t, err)

	active, err := e.ListActiveExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].ID)
}

// brokenStore fails every read with a non-sentinel error.
type brokenStore struct {
	store.Store
}

var errDown = errors.New("database is down")

func (brokenStore) GetExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	return nil, errDown
}

func (brokenStore) RecordConversion(ctx context.Context, experimentID, subjectKey string, c store.Conversion) (*store.Assignment, error) {
	return nil, errDown
}

func TestEngine_StoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	e, logs := newEngine(t, brokenStore{Store: store.NewMemoryStore()})
	id := ledger.Identity{UserID: "u"}

	assert.Nil(t, e.GetVariant(ctx, "exp", id, bucketing.Attributes{}))
	assert.False(t, e.TrackConversion(ctx, "exp", id, ledger.Conversion{}))

	assert.Contains(t, logs.String(), "variant assignment failed")
	assert.Contains(t, logs.String(), "conversion tracking failed")
	assert.Contains(t, logs.String(), "database is down")
}
