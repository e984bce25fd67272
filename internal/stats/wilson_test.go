package stats_test

import (
	"math"
	"testing"

	"github.com/w3bsuki/strike-ab/internal/stats"
)

func TestWilsonInterval_50PercentConversion(t *testing.T) {
	lower, upper := stats.WilsonInterval(50, 100, 0.95)

	if lower < 0.38 || lower > 0.42 {
		t.Errorf("lower bound %f not in expected range [0.38, 0.42]", lower)
	}
	if upper < 0.58 || upper > 0.62 {
		t.Errorf("upper bound %f not in expected range [0.58, 0.62]", upper)
	}
}

func TestWilsonInterval_LowConversion(t *testing.T) {
	lower, upper := stats.WilsonInterval(5, 100, 0.95)

	if lower < 0.01 || lower > 0.03 {
		t.Errorf("lower bound %f not in expected range [0.01, 0.03]", lower)
	}
	if upper < 0.09 || upper > 0.13 {
		t.Errorf("upper bound %f not in expected range [0.09, 0.13]", upper)
	}
}

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)

	if lower != 0 || upper != 0 {
		t.Errorf("expected (0, 0) for zero trials, got (%f, %f)", lower, upper)
	}
}

func TestWilsonInterval_Bounds(t *testing.T) {
	lower, _ := stats.WilsonInterval(0, 100, 0.95)
	if lower != 0 {
		t.Errorf("expected lower bound 0, got %f", lower)
	}

	_, upper := stats.WilsonInterval(100, 100, 0.95)
	if upper > 1.0 {
		t.Errorf("upper bound %f exceeds 1", upper)
	}
}

func TestWilsonInterval_SmallSample(t *testing.T) {
	lower, upper := stats.WilsonInterval(5, 10, 0.95)

	if width := upper - lower; width < 0.3 {
		t.Errorf("interval width %f too narrow for small sample", width)
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		expected   float64
		tolerance  float64
	}{
		{0.80, 1.28, 0.001},
		{0.90, 1.645, 0.001},
		{0.95, 1.96, 0.001},
		{0.99, 2.576, 0.001},
		{0.975, 2.241, 0.01},
		{0.999, 3.291, 0.01},
		{0, 1.96, 0.001},
		{1, 1.96, 0.001},
	}

	for _, tt := range tests {
		z := stats.ZScore(tt.confidence)
		if math.Abs(z-tt.expected) > tt.tolerance {
			t.Errorf("ZScore(%f) = %f, want %f (tolerance %f)", tt.confidence, z, tt.expected, tt.tolerance)
		}
	}
}
