package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// criticalValues pins the levels reports usually quote to their textbook
// rounding so thresholds print as 1.96 rather than 1.959964.
var criticalValues = map[float64]float64{
	0.80: 1.28,
	0.85: 1.44,
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// ZScore is the two-sided critical value for a confidence level in (0, 1).
// Levels outside that range fall back to 95%.
func ZScore(confidence float64) float64 {
	if z, ok := criticalValues[confidence]; ok {
		return z
	}
	if confidence <= 0 || confidence >= 1 {
		return criticalValues[DefaultSignificance]
	}
	return distuv.UnitNormal.Quantile(0.5 + confidence/2)
}

// WilsonInterval is the Wilson score interval for successes out of trials,
// clamped to [0, 1]. Zero trials yield (0, 0).
func WilsonInterval(successes, trials int, confidence float64) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}

	n := float64(trials)
	p := float64(successes) / n
	z2 := math.Pow(ZScore(confidence), 2)

	scale := 1 / (1 + z2/n)
	mid := scale * (p + z2/(2*n))
	half := scale * math.Sqrt(z2*(p*(1-p)/n+z2/(4*n*n)))

	return math.Max(0, mid-half), math.Min(1, mid+half)
}
