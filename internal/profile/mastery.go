package profile

import (
	"math"
	"time"
)

// Recovery boost accounting constants.
const (
	recoveryBase     = 0.12
	recoveryPerError = 0.03
	recoveryExtra    = 0.05
	recoveryMax      = 0.35
	enhancedFactor   = 1.5
	recoveryDecay    = 0.02
	enhancedDecay    = 0.05
)

// Decay clamp bounds: temporal decay never drags mastery outside this range.
const (
	decayFloor = 0.05
	decayCeil  = 0.95
)

// ConceptMastery is the per-(learner, concept) knowledge state. All rate
// fields stay strictly inside (0,1); mastery stays inside [ε, 1−ε]. Only the
// update core mutates it, under the owning learner's lock.
type ConceptMastery struct {
	ConceptID       string
	Mastery         float64
	Prior           float64 // baseline the mastery decays toward
	Confidence      float64
	PracticeCount   int
	LastInteraction time.Time

	LearningRate float64
	SlipRate     float64
	GuessRate    float64
	DecayRate    float64

	ConsecutiveErrors int
	RecentWindow      []bool
	RecoveryBoost     float64
	EnhancedBoost     float64
	StruggleCount     int
}

// Clone returns a deep copy. The update core works on a clone and installs
// it only at write-back, so an aborted update leaves no trace.
func (cm *ConceptMastery) Clone() *ConceptMastery {
	out := *cm
	out.RecentWindow = append([]bool(nil), cm.RecentWindow...)
	return &out
}

// ApplyTemporalDecay relaxes mastery toward the prior at exp(−decay·Δdays).
// The identity when no time has passed since the last interaction.
func (cm *ConceptMastery) ApplyTemporalDecay(now time.Time) {
	if cm.LastInteraction.IsZero() || !now.After(cm.LastInteraction) {
		return
	}
	days := now.Sub(cm.LastInteraction).Hours() / 24
	if days <= 0 {
		return
	}
	m := cm.Prior + (cm.Mastery-cm.Prior)*math.Exp(-cm.DecayRate*days)
	cm.Mastery = math.Max(decayFloor, math.Min(decayCeil, m))
}

// Observe records one answered question: bumps the practice count, stamps the
// interaction time, appends to the bounded recent window, and grows
// confidence with practice.
func (cm *ConceptMastery) Observe(correct bool, at time.Time, window int) {
	cm.PracticeCount++
	cm.LastInteraction = at
	cm.RecentWindow = append(cm.RecentWindow, correct)
	if window > 0 && len(cm.RecentWindow) > window {
		cm.RecentWindow = cm.RecentWindow[len(cm.RecentWindow)-window:]
	}
	cm.Confidence = math.Min(0.95, 0.3+0.05*float64(cm.PracticeCount))
}

// RecordFailure advances the struggle accounting after an incorrect answer.
// Low-practice learners trip the recovery boost on the first error; everyone
// else on the second. Four struggles in a row escalate to the enhanced boost.
// priorMastery is the mastery the answer was judged against, before this
// update moved it.
func (cm *ConceptMastery) RecordFailure(priorMastery float64) {
	cm.ConsecutiveErrors++
	cm.StruggleCount++

	threshold := 2
	if cm.PracticeCount <= 3 {
		threshold = 1
	}
	if cm.StruggleCount >= threshold {
		extra := 0.0
		if cm.PracticeCount <= 2 || priorMastery < 0.25 {
			extra = recoveryExtra
		}
		boost := recoveryBase + recoveryPerError*float64(cm.StruggleCount) + extra
		cm.RecoveryBoost = math.Max(0, math.Min(recoveryMax, boost))
	}
	if cm.StruggleCount >= 4 {
		cm.EnhancedBoost = cm.RecoveryBoost * enhancedFactor
	}
}

// RecordSuccess resets the struggle counter and lets active boosts bleed off.
func (cm *ConceptMastery) RecordSuccess() {
	cm.ConsecutiveErrors = 0
	cm.StruggleCount = 0
	cm.RecoveryBoost = math.Max(0, cm.RecoveryBoost-recoveryDecay)
	cm.EnhancedBoost = math.Max(0, cm.EnhancedBoost-enhancedDecay)
}

// ActiveRecoveryBoost is the boost the update core feeds into the effective
// learn rate; the enhanced boost dominates while it lasts.
func (cm *ConceptMastery) ActiveRecoveryBoost() float64 {
	return math.Max(cm.RecoveryBoost, cm.EnhancedBoost)
}

// InRecovery reports whether any boost is still active.
func (cm *ConceptMastery) InRecovery() bool {
	return cm.ActiveRecoveryBoost() > 0
}

// SuccessRate returns the fraction of correct answers over the last k window
// entries. ok is false when the window is empty.
func (cm *ConceptMastery) SuccessRate(k int) (rate float64, ok bool) {
	return successRate(cm.RecentWindow, k)
}

func successRate(window []bool, k int) (float64, bool) {
	if len(window) == 0 {
		return 0, false
	}
	if k > 0 && len(window) > k {
		window = window[len(window)-k:]
	}
	correct := 0
	for _, c := range window {
		if c {
			correct++
		}
	}
	return float64(correct) / float64(len(window)), true
}
