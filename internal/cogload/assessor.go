// Package cogload assesses cognitive load using the Sweller decomposition:
// intrinsic load from the material itself, extraneous load from pressure and
// presentation, and germane load spent building schemas. The assessor is
// pure; identical inputs always produce identical assessments.
package cogload

import (
	"math"

	"knowtrace/internal/types"
)

// Input carries everything the assessor looks at. Ratios are clamped into
// their documented ranges before use, so hosts can pass raw signals.
type Input struct {
	SolutionSteps       int     // number of solution steps in the question
	Mastery             float64 // [0,1] learner's current concept mastery
	PrereqGap           float64 // [0,1] 1 - prerequisite readiness
	TimePressure        float64 // (0,∞) allotted/needed ratio; <1 means pressure
	InterfaceComplexity float64 // [0,1]
	Distraction         float64 // [0,1]
	Stress              float64 // [0,1]
	Fatigue             float64 // [0,1]
}

// Recommendation tags emitted by Assess.
const (
	RecommendBreak        = "break"
	RecommendSimplify     = "simplify-interface"
	RecommendSegment      = "segment"
	RecommendSchemaPrompt = "schema-prompt"
)

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Assess computes the load decomposition and overload risk.
//
// Working-memory capacity shrinks under stress and fatigue but never below
// two slots. Overload risk is a logistic over how far total load exceeds
// capacity.
func Assess(in Input) types.LoadAssessment {
	steps := in.SolutionSteps
	if steps < 0 {
		steps = 0
	}
	mastery := clamp01(in.Mastery)
	gap := clamp01(in.PrereqGap)
	ix := clamp01(in.InterfaceComplexity)
	distraction := clamp01(in.Distraction)
	stress := clamp01(in.Stress)
	fatigue := clamp01(in.Fatigue)
	tp := in.TimePressure
	if tp <= 0 {
		tp = 1.0
	}

	capacity := math.Max(2, 7*(1-0.4*stress-0.3*fatigue))

	intrinsic := 0.4*math.Min(5, math.Log2(float64(steps)+1)) +
		0.3*(1-mastery)*3 +
		0.3*math.Max(0, gap-0.8)*2

	extraneous := 0.35*math.Max(0, 1-tp)*4 +
		0.25*ix*3 +
		0.25*distraction*2

	germane := math.Max(0, 0.2*intrinsic)

	total := intrinsic + extraneous + germane

	// Logistic over load excess relative to capacity.
	risk := 1 / (1 + math.Exp(-3*(total/capacity-1)))

	var recs []string
	if risk > 0.7 {
		recs = append(recs, RecommendBreak)
	}
	if extraneous > 3 {
		recs = append(recs, RecommendSimplify)
	}
	if intrinsic > 5 {
		recs = append(recs, RecommendSegment)
	}
	if germane < 1 {
		recs = append(recs, RecommendSchemaPrompt)
	}

	return types.LoadAssessment{
		Components: types.LoadComponents{
			Intrinsic:  intrinsic,
			Extraneous: extraneous,
			Germane:    germane,
		},
		Total:           total,
		WorkingCapacity: capacity,
		OverloadRisk:    risk,
		Recommendations: recs,
	}
}
