package stats_test

import (
	"math"
	"testing"

	"github.com/w3bsuki/strike-ab/internal/stats"
)

func TestZTest_ClearDifference(t *testing.T) {
	// 10% vs 14% over 1000 visitors each
	z := stats.ZTest(100, 1000, 140, 1000)

	if math.Abs(z-2.752) > 0.01 {
		t.Errorf("expected z ~2.752, got %f", z)
	}
}

func TestZTest_Symmetric(t *testing.T) {
	a := stats.ZTest(100, 1000, 140, 1000)
	b := stats.ZTest(140, 1000, 100, 1000)

	if math.Abs(a-b) > 1e-12 {
		t.Errorf("expected |z| to be symmetric, got %f and %f", a, b)
	}
}

func TestZTest_EqualRates(t *testing.T) {
	if z := stats.ZTest(50, 1000, 50, 1000); z != 0 {
		t.Errorf("expected z 0 for equal rates, got %f", z)
	}
}

func TestZTest_Degenerate(t *testing.T) {
	tests := []struct {
		name          string
		cConv, cViews int
		vConv, vViews int
	}{
		{"zero views", 0, 0, 0, 0},
		{"control without views", 0, 0, 10, 100},
		{"variant without views", 10, 100, 0, 0},
		{"no conversions anywhere", 0, 100, 0, 100},
		{"everything converts", 100, 100, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if z := stats.ZTest(tt.cConv, tt.cViews, tt.vConv, tt.vViews); z != 0 {
				t.Errorf("expected 0, got %f", z)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		z        float64
		expected float64
	}{
		{0, 0},
		{1.96, 0.95},
		{2.576, 0.99},
		{-1.96, 0.95},
	}

	for _, tt := range tests {
		if c := stats.Confidence(tt.z); math.Abs(c-tt.expected) > 0.001 {
			t.Errorf("Confidence(%f) = %f, want %f", tt.z, c, tt.expected)
		}
	}
}

func TestUplift(t *testing.T) {
	if u := stats.Uplift(0.10, 0.14); math.Abs(u-40) > 1e-9 {
		t.Errorf("expected uplift 40, got %f", u)
	}
	if u := stats.Uplift(0.10, 0.05); math.Abs(u+50) > 1e-9 {
		t.Errorf("expected uplift -50, got %f", u)
	}
	if u := stats.Uplift(0, 0.05); u != 0 {
		t.Errorf("expected uplift 0 for zero control rate, got %f", u)
	}
}
