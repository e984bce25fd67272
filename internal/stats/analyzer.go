package stats

import (
	"context"
	"fmt"

	mstats "github.com/montanaflynn/stats"

	"github.com/w3bsuki/strike-ab/internal/store"
)

const (
	DefaultMinimumSampleSize = 100
	DefaultSignificance      = 0.95

	// ControlID marks the baseline variant. Without it the first declared
	// variant is the control.
	ControlID = "control"
)

type Status string

const (
	StatusInsufficientData Status = "insufficient_data"
	StatusNoWinner         Status = "no_winner"
	StatusWinnerFound      Status = "winner_found"
)

// VariantResult contains statistics for a single variant
type VariantResult struct {
	VariantID      string  `json:"variantId"`
	Name           string  `json:"name"`
	IsControl      bool    `json:"isControl"`
	Visitors       int     `json:"visitors"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
	TotalValue     float64 `json:"totalValue"`
	AverageValue   float64 `json:"averageValue"`
	Significance   float64 `json:"significance"` // |z| vs control
	Uplift         float64 `json:"uplift"`       // % vs control
	Confidence     float64 `json:"confidence"`   // two-sided, vs control
	CILower        float64 `json:"ciLower"`
	CIUpper        float64 `json:"ciUpper"`
}

// Analysis is derived on demand from the full assignment set and never
// cached.
type Analysis struct {
	ExperimentID      string          `json:"experimentId"`
	Status            Status          `json:"status"`
	Winner            *string         `json:"winner,omitempty"`
	Confidence        *float64        `json:"confidence,omitempty"`
	Recommendations   []string        `json:"recommendations"`
	Variants          []VariantResult `json:"variants"`
	TotalVisitors     int             `json:"totalVisitors"`
	MinimumSampleSize int             `json:"minimumSampleSize"`
	Threshold         float64         `json:"threshold"`
}

// Control returns the control variant's result.
func (a *Analysis) Control() *VariantResult {
	for i := range a.Variants {
		if a.Variants[i].IsControl {
			return &a.Variants[i]
		}
	}
	return nil
}

// Variant returns the result for a variant id, or nil.
func (a *Analysis) Variant(id string) *VariantResult {
	for i := range a.Variants {
		if a.Variants[i].VariantID == id {
			return &a.Variants[i]
		}
	}
	return nil
}

// Analyze aggregates assignments per variant and compares every variant to
// the control with an independent two-proportion z-test. No correction for
// multiple comparisons is applied.
func Analyze(exp *store.Experiment, assignments []*store.Assignment) *Analysis {
	minSample := exp.MinimumSampleSize
	if minSample <= 0 {
		minSample = DefaultMinimumSampleSize
	}
	significance := exp.StatisticalSignificance
	if significance <= 0 {
		significance = DefaultSignificance
	}

	result := &Analysis{
		ExperimentID:      exp.ID,
		MinimumSampleSize: minSample,
		Threshold:         ZScore(significance),
		Variants:          make([]VariantResult, len(exp.Variants)),
	}
	if len(exp.Variants) == 0 {
		result.Status = StatusInsufficientData
		result.Recommendations = []string{"Experiment has no variants to analyze"}
		return result
	}

	controlIdx := controlIndex(exp)
	index := make(map[string]int, len(exp.Variants))
	for i, v := range exp.Variants {
		index[v.ID] = i
		result.Variants[i] = VariantResult{
			VariantID: v.ID,
			Name:      displayName(v),
			IsControl: i == controlIdx,
		}
	}

	values := make([][]float64, len(exp.Variants))
	for _, a := range assignments {
		i, ok := index[a.VariantID]
		if !ok {
			continue // variant removed from the definition
		}
		result.TotalVisitors++
		result.Variants[i].Visitors++
		if a.Converted {
			result.Variants[i].Conversions++
			v := 0.0
			if a.ConversionValue != nil {
				v = *a.ConversionValue
			}
			values[i] = append(values[i], v)
		}
	}

	if result.TotalVisitors < minSample {
		// Keep identities only; rates off a small sample are noise.
		for i := range result.Variants {
			v := &result.Variants[i]
			*v = VariantResult{VariantID: v.VariantID, Name: v.Name, IsControl: v.IsControl}
		}
		result.Status = StatusInsufficientData
		result.Recommendations = []string{fmt.Sprintf(
			"Keep collecting data: %d of %d required visitors so far", result.TotalVisitors, minSample)}
		return result
	}

	for i := range result.Variants {
		v := &result.Variants[i]
		if v.Visitors > 0 {
			v.ConversionRate = float64(v.Conversions) / float64(v.Visitors)
		}
		v.TotalValue = sum(values[i])
		if v.Conversions > 0 {
			v.AverageValue = mean(values[i])
		}
		v.CILower, v.CIUpper = WilsonInterval(v.Conversions, v.Visitors, DefaultSignificance)
	}

	control := &result.Variants[controlIdx]
	withData := 0
	for i := range result.Variants {
		if i != controlIdx && result.Variants[i].Visitors > 0 {
			withData++
		}
	}
	if withData == 0 {
		result.Status = StatusInsufficientData
		result.Recommendations = []string{"Keep collecting data: no variant besides the control has visitors yet"}
		return result
	}

	winner := -1
	for i := range result.Variants {
		if i == controlIdx {
			continue
		}
		v := &result.Variants[i]
		v.Significance = ZTest(control.Conversions, control.Visitors, v.Conversions, v.Visitors)
		v.Uplift = Uplift(control.ConversionRate, v.ConversionRate)
		v.Confidence = Confidence(v.Significance)

		if v.Significance > result.Threshold && v.ConversionRate > control.ConversionRate {
			if winner < 0 || v.ConversionRate > result.Variants[winner].ConversionRate {
				winner = i
			}
		}
	}

	if winner >= 0 {
		w := result.Variants[winner]
		id := w.VariantID
		conf := w.Confidence
		result.Status = StatusWinnerFound
		result.Winner = &id
		result.Confidence = &conf
	} else {
		result.Status = StatusNoWinner
	}
	result.Recommendations = recommend(result, controlIdx, winner)

	return result
}

func recommend(a *Analysis, controlIdx, winner int) []string {
	control := a.Variants[controlIdx]
	var recs []string

	if winner >= 0 {
		w := a.Variants[winner]
		recs = append(recs,
			fmt.Sprintf("%s is the winner with a %.2f%% conversion rate (%+.1f%% uplift vs %s, %.1f%% confidence)",
				w.Name, w.ConversionRate*100, w.Uplift, control.Name, w.Confidence*100),
			fmt.Sprintf("Consider completing the experiment and rolling out %s", w.Name),
		)
	} else {
		recs = append(recs, "No statistically significant winner yet; keep the experiment running")
	}

	compared, losing := 0, 0
	for i, v := range a.Variants {
		if i == controlIdx || v.Visitors == 0 {
			continue
		}
		compared++
		if v.ConversionRate < control.ConversionRate {
			losing++
			if v.Significance > a.Threshold {
				recs = append(recs, fmt.Sprintf("%s converts significantly worse than %s (%+.1f%%)", v.Name, control.Name, v.Uplift))
			}
		}
	}

	if control.Visitors == 0 {
		recs = append(recs, fmt.Sprintf("%s has no visitors; review targeting and variant weights", control.Name))
	} else if winner < 0 && losing == compared {
		recs = append(recs, "No variant beats the control; review targeting or the variant designs")
	}
	if compared > 1 {
		recs = append(recs, fmt.Sprintf(
			"%d variants were each compared to the control without multiple-comparison correction; treat borderline results with caution", compared))
	}

	return recs
}

func controlIndex(exp *store.Experiment) int {
	for i, v := range exp.Variants {
		if v.ID == ControlID {
			return i
		}
	}
	return 0
}

func displayName(v store.Variant) string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

func sum(values []float64) float64 {
	s, err := mstats.Sum(values)
	if err != nil {
		return 0
	}
	return s
}

func mean(values []float64) float64 {
	m, err := mstats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}

// Analyzer loads an experiment and its assignments and analyzes them.
type Analyzer struct {
	store store.Store
}

func NewAnalyzer(s store.Store) *Analyzer {
	return &Analyzer{store: s}
}

// Analyze returns store.ErrNotFound for unknown experiments.
func (a *Analyzer) Analyze(ctx context.Context, experimentID string) (*Analysis, error) {
	exp, err := a.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	assignments, err := a.store.ListAssignments(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return Analyze(exp, assignments), nil
}
