package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ZTest performs a pooled two-proportion z-test and returns |z|.
// It returns 0 when either side has no visitors or the pooled variance
// vanishes (both rates 0% or both 100%).
func ZTest(controlConv, controlViews, variantConv, variantViews int) float64 {
	if controlViews == 0 || variantViews == 0 {
		return 0
	}

	pC := float64(controlConv) / float64(controlViews)
	pV := float64(variantConv) / float64(variantViews)

	// Pooled proportion under the null hypothesis (pC = pV)
	pooled := float64(controlConv+variantConv) / float64(controlViews+variantViews)

	// Standard error of the difference
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlViews) + 1/float64(variantViews)))
	if se == 0 {
		return 0
	}

	return math.Abs(pC-pV) / se
}

// Confidence converts |z| to a two-sided confidence level: 1 - 2(1 - Φ(z)).
func Confidence(z float64) float64 {
	c := 1 - 2*(1-normalCDF(math.Abs(z)))
	if c < 0 {
		return 0
	}
	return c
}

// Uplift is the relative change of the variant rate over control, in percent.
func Uplift(controlRate, variantRate float64) float64 {
	if controlRate == 0 {
		return 0
	}
	return (variantRate - controlRate) / controlRate * 100
}

// normalCDF is the cumulative distribution function of the standard normal
// distribution.
func normalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}
