package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink counts events per experiment and variant.
type MetricsSink struct {
	assignments *prometheus.CounterVec
	conversions *prometheus.CounterVec
	value       *prometheus.CounterVec
}

// NewMetricsSink registers its collectors on reg. Pass a fresh registry in
// tests to avoid duplicate registration panics.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)
	return &MetricsSink{
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strike_ab_assignments_total",
			Help: "Total new experiment assignments by experiment and variant",
		}, []string{"experiment", "variant"}),
		conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strike_ab_conversions_total",
			Help: "Total conversion events by experiment and variant",
		}, []string{"experiment", "variant"}),
		value: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strike_ab_conversion_value_total",
			Help: "Sum of reported conversion values by experiment and variant",
		}, []string{"experiment", "variant"}),
	}
}

func (s *MetricsSink) Emit(ctx context.Context, name string, props Properties) error {
	experiment := props.String("experimentId")
	variant := props.String("variantId")

	switch name {
	case ExperimentAssignment:
		s.assignments.WithLabelValues(experiment, variant).Inc()
	case ExperimentConversion:
		s.conversions.WithLabelValues(experiment, variant).Inc()
		if v, ok := props["value"].(float64); ok && v > 0 {
			s.value.WithLabelValues(experiment, variant).Add(v)
		}
	}
	return nil
}
