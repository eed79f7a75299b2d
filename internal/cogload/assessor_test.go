package cogload

import (
	"math"
	"testing"
)

func TestAssess_Deterministic(t *testing.T) {
	in := Input{SolutionSteps: 5, Mastery: 0.4, TimePressure: 0.9, Stress: 0.3, Fatigue: 0.2}
	a := Assess(in)
	b := Assess(in)
	if a.Total != b.Total || a.OverloadRisk != b.OverloadRisk {
		t.Error("Assess must be deterministic in its inputs")
	}
}

func TestAssess_CapacityUnderMaxStrain(t *testing.T) {
	// Fully stressed and fatigued: 7*(1-0.4-0.3) = 2.1, just above the
	// floor of 2, which clamped inputs can never undercut.
	a := Assess(Input{SolutionSteps: 1, Mastery: 1, TimePressure: 1, Stress: 1, Fatigue: 1})
	if math.Abs(a.WorkingCapacity-2.1) > 1e-9 {
		t.Errorf("capacity = %.4f, want 2.1", a.WorkingCapacity)
	}
	if a.WorkingCapacity < 2 {
		t.Errorf("capacity %.4f below floor", a.WorkingCapacity)
	}
}

func TestAssess_CapacityUnstressed(t *testing.T) {
	a := Assess(Input{SolutionSteps: 1, Mastery: 1, TimePressure: 1})
	if a.WorkingCapacity != 7 {
		t.Errorf("unstressed capacity = %.2f, want 7", a.WorkingCapacity)
	}
}

func TestAssess_IntrinsicComputation(t *testing.T) {
	// steps=3, mastery=0.5, gap=1.0:
	// 0.4*log2(4) + 0.3*0.5*3 + 0.3*0.2*2 = 0.8 + 0.45 + 0.12
	a := Assess(Input{SolutionSteps: 3, Mastery: 0.5, PrereqGap: 1.0, TimePressure: 1})
	want := 0.8 + 0.45 + 0.12
	if math.Abs(a.Components.Intrinsic-want) > 1e-9 {
		t.Errorf("intrinsic = %.4f, want %.4f", a.Components.Intrinsic, want)
	}
	if math.Abs(a.Components.Germane-0.2*want) > 1e-9 {
		t.Errorf("germane = %.4f, want %.4f", a.Components.Germane, 0.2*want)
	}
}

func TestAssess_StepLogCap(t *testing.T) {
	// log2(steps+1) caps at 5, so 40 and 400 steps contribute equally.
	a := Assess(Input{SolutionSteps: 40, Mastery: 1, TimePressure: 1})
	b := Assess(Input{SolutionSteps: 400, Mastery: 1, TimePressure: 1})
	if a.Components.Intrinsic != b.Components.Intrinsic {
		t.Errorf("step contribution should cap: %.3f vs %.3f",
			a.Components.Intrinsic, b.Components.Intrinsic)
	}
}

func TestAssess_RiskInOpenUnitInterval(t *testing.T) {
	for _, in := range []Input{
		{},
		{SolutionSteps: 100, TimePressure: 0.1, InterfaceComplexity: 1, Distraction: 1, Stress: 1, Fatigue: 1},
		{SolutionSteps: 1, Mastery: 1, TimePressure: 5},
	} {
		a := Assess(in)
		if a.OverloadRisk <= 0 || a.OverloadRisk >= 1 {
			t.Errorf("risk %.4f not in (0,1) for %+v", a.OverloadRisk, in)
		}
		if math.IsNaN(a.Total) || math.IsNaN(a.OverloadRisk) {
			t.Errorf("NaN output for %+v", in)
		}
	}
}

func TestAssess_OverloadScenario(t *testing.T) {
	// Heavy question under pressure with a tired, stressed learner.
	a := Assess(Input{
		SolutionSteps:       12,
		Mastery:             0.2,
		PrereqGap:           1.0,
		TimePressure:        0.5,
		InterfaceComplexity: 0.7,
		Distraction:         0.8,
		Stress:              0.8,
		Fatigue:             0.8,
	})
	if a.OverloadRisk <= 0.7 {
		t.Errorf("overload risk = %.3f, want > 0.7", a.OverloadRisk)
	}
	found := false
	for _, r := range a.Recommendations {
		if r == RecommendBreak {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q recommendation, got %v", RecommendBreak, a.Recommendations)
	}
}

func TestAssess_SchemaPromptWhenGermaneLow(t *testing.T) {
	a := Assess(Input{SolutionSteps: 1, Mastery: 0.9, TimePressure: 1.2})
	found := false
	for _, r := range a.Recommendations {
		if r == RecommendSchemaPrompt {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q for low germane load, got %v", RecommendSchemaPrompt, a.Recommendations)
	}
}

func TestAssess_ClampsRawSignals(t *testing.T) {
	a := Assess(Input{SolutionSteps: -3, Mastery: 2, PrereqGap: -1, TimePressure: -2, Stress: 3, Fatigue: -4})
	if math.IsNaN(a.Total) || a.Total < 0 {
		t.Errorf("clamped input produced bad total %.3f", a.Total)
	}
}
