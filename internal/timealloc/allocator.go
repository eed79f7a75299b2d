// Package timealloc computes per-question time budgets. The budget is a
// base time scaled by six bounded multiplicative factors (stress, fatigue,
// mastery, difficulty, session length, device), each exposed in the
// breakdown for logging. Allocation is deterministic in its inputs.
package timealloc

import (
	"math"

	"knowtrace/internal/types"
)

// FloorMs is the minimum budget ever allocated.
const FloorMs = 1000

// CeilingMultiple caps the budget at this multiple of the base time.
const CeilingMultiple = 8

// longSessionMs is when the session factor kicks in.
const longSessionMs = 30 * 60 * 1000

// DefaultBaseMs is used when the request carries no base time.
const DefaultBaseMs = 30000

// Allocate computes the time budget for one question.
func Allocate(req types.TimeRequest) types.TimeAllocation {
	base := req.BaseTimeMs
	if base <= 0 {
		base = DefaultBaseMs
	}

	stress := clamp01(req.Stress)
	fatigue := clamp01(req.Fatigue)
	mastery := clamp01(req.Mastery)
	difficulty := clamp01(req.Difficulty)

	// Stressed learners get more time; mild stress is neutral.
	fStress := 1.0
	if stress > 0.3 {
		fStress = 1 + 0.5*stress
	}

	// Fatigue earns up to 30% more.
	fFatigue := math.Min(1.3, 1+0.3*fatigue)

	// Low mastery earns more time, high mastery slightly less.
	fMastery := 1.2 - 0.3*mastery

	// Harder questions earn more time.
	fDifficulty := 1 + 0.5*difficulty

	// Long sessions get a small cushion.
	fSession := 1.0
	if req.ElapsedMs > longSessionMs {
		fSession = 1.1
	}

	// Small screens and slow links each cost a little extra.
	fDevice := 1.0
	if req.Device.Class == types.DeviceMobile || req.Device.SmallScreen {
		fDevice *= 1.1
	}
	if req.Device.LowBandwidth {
		fDevice *= 1.05
	}

	factor := fStress * fFatigue * fMastery * fDifficulty * fSession * fDevice

	// The floor is applied last: a tiny base time can put the ceiling
	// below FloorMs, and the learner still gets the minimum.
	final := int64(math.Round(float64(base) * factor))
	if ceiling := base * CeilingMultiple; final > ceiling {
		final = ceiling
	}
	if final < FloorMs {
		final = FloorMs
	}

	return types.TimeAllocation{
		FinalTimeMs: final,
		Factor:      factor,
		Breakdown: map[string]float64{
			"stress":     fStress,
			"fatigue":    fFatigue,
			"mastery":    fMastery,
			"difficulty": fDifficulty,
			"session":    fSession,
			"device":     fDevice,
		},
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
