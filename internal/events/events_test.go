package events_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3bsuki/strike-ab/internal/events"
)

func TestLogSink_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	sink := events.NewLogSink(logger, slog.LevelInfo)
	err := sink.Emit(context.Background(), events.ExperimentAssignment, events.Properties{
		"experimentId": "hero",
		"variantId":    "control",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"event":"experiment_assignment"`)
	assert.Contains(t, out, `"experimentId":"hero"`)
	assert.Contains(t, out, `"variantId":"control"`)
}

func TestMulti_CallsEverySinkAndJoinsErrors(t *testing.T) {
	errBroken := errors.New("broken pipe")
	var calls []string

	record := func(name string, err error) events.Sink {
		return events.SinkFunc(func(ctx context.Context, event string, props events.Properties) error {
			calls = append(calls, name)
			return err
		})
	}

	sink := events.Multi(record("first", errBroken), record("second", nil), record("third", nil))
	err := sink.Emit(context.Background(), events.ExperimentConversion, nil)

	assert.Equal(t, []string{"first", "second", "third"}, calls)
	assert.ErrorIs(t, err, errBroken)
}

func TestMulti_NoErrors(t *testing.T) {
	sink := events.Multi(events.Nop, events.Nop)
	assert.NoError(t, sink.Emit(context.Background(), events.ExperimentAssignment, nil))
}

func TestMetricsSink_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := events.NewMetricsSink(reg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Emit(ctx, events.ExperimentAssignment, events.Properties{
			"experimentId": "hero", "variantId": "control",
		}))
	}
	require.NoError(t, sink.Emit(ctx, events.ExperimentConversion, events.Properties{
		"experimentId": "hero", "variantId": "control", "value": 49.5,
	}))
	require.NoError(t, sink.Emit(ctx, events.ExperimentConversion, events.Properties{
		"experimentId": "hero", "variantId": "control",
	}))

	expected := `
# HELP strike_ab_assignments_total Total new experiment assignments by experiment and variant
# TYPE strike_ab_assignments_total counter
strike_ab_assignments_total{experiment="hero",variant="control"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "strike_ab_assignments_total"))

	expectedConversions := `
# HELP strike_ab_conversions_total Total conversion events by experiment and variant
# TYPE strike_ab_conversions_total counter
strike_ab_conversions_total{experiment="hero",variant="control"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expectedConversions), "strike_ab_conversions_total"))

	expectedValue := `
# HELP strike_ab_conversion_value_total Sum of reported conversion values by experiment and variant
# TYPE strike_ab_conversion_value_total counter
strike_ab_conversion_value_total{experiment="hero",variant="control"} 49.5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expectedValue), "strike_ab_conversion_value_total"))
}
