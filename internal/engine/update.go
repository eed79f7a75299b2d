package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"knowtrace/internal/cogload"
	"knowtrace/internal/policy"
	"knowtrace/internal/profile"
	"knowtrace/internal/types"
)

// Posterior numerics.
const (
	posteriorFloor = 1e-3
	denominatorMin = 1e-12
	masteryFloor   = 0.005
	masteryCeil    = 0.995
)

// Hint usage loosens the effective guess; repeated attempts raise the
// effective slip.
const (
	hintGuessBonus   = 0.02
	attemptSlipBonus = 0.01
)

// Update runs the full mastery update for one interaction. Cancellation is
// honored only before the learner's critical section; once inside, the
// update either applies completely or aborts before write-back with no state
// change.
func (e *Engine) Update(ctx context.Context, ev types.InteractionEvent) (types.UpdateResult, error) {
	if err := e.validateEvent(ev); err != nil {
		return failResult(ev, err), err
	}
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("update %s/%s: %w", ev.LearnerID, ev.ConceptID, types.ErrCancelled)
		return failResult(ev, err), err
	}

	lock := e.profiles.LearnerLock(ev.LearnerID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	now := ev.Timestamp
	if now.IsZero() {
		now = e.clock.Now()
	}

	// Step 1: locate or create state. Creation applies the cold-start
	// transfer boost.
	p := e.profiles.GetOrCreate(ev.LearnerID)
	band := bandFor(ev.Question.Difficulty)
	cm, created, err := e.profiles.GetOrCreateMastery(p, ev.ConceptID, band.Prior, profile.RateSeed{
		Learn: band.Transit,
		Slip:  band.Slip,
		Guess: band.Guess,
	})
	if err != nil {
		return failResult(ev, err), err
	}

	// All mutations go through a scratch copy until write-back.
	scratch := cm.Clone()

	// Step 2: temporal decay.
	scratch.ApplyTemporalDecay(now)
	previous := scratch.Mastery

	// Readiness feeds both the load assessor's prerequisite gap and the
	// decision stage.
	readiness, err := e.analyzer.AnalyzeReadiness(ev.ConceptID, p.MasteryMap(), e.cfg.Engine.ReadinessThreshold)
	if err != nil {
		if created {
			delete(p.Masteries, ev.ConceptID)
		}
		return failResult(ev, err), err
	}

	// Step 4: context modulation. The stress level fuses the event hint
	// with the behavioral detector's reading.
	reading := e.detector.Observe(ev.LearnerID, types.StressSample{
		ResponseTimeMs: ev.ResponseTimeMs,
		Correct:        ev.Correct,
	})
	sigma := math.Max(ev.Context.StressHint, reading.Level*reading.Confidence)

	assessment := e.AssessLoad(cogload.Input{
		SolutionSteps:       ev.Question.SolutionSteps,
		Mastery:             previous,
		PrereqGap:           1 - readiness.Overall,
		TimePressure:        ev.Context.TimePressure,
		InterfaceComplexity: ev.Question.SchemaComplexity,
		Distraction:         ev.Context.Distraction,
		Stress:              sigma,
		Fatigue:             ev.Context.Fatigue,
	})

	stressMod := profile.StressModifier(sigma, p.StressTolerance)
	loadMod := 0.15 * assessment.Total
	timeMod := timePressureMod(ev.Context.TimePressure)
	fatigueMod := 0.10 * ev.Context.Fatigue
	deviceMod := 0.0
	if ev.Context.Device.Class == types.DeviceMobile {
		deviceMod = 0.02
	}
	deltaNeg := stressMod + loadMod + timeMod + fatigueMod + deviceMod

	// Step 5: effective parameters.
	learnBase := p.AdaptiveLearningRate(ev.ConceptID, band.Transit)
	recovery := scratch.ActiveRecoveryBoost()

	slipAdj := 0.0
	if ev.Question.Attempt > 1 {
		slipAdj = attemptSlipBonus * float64(ev.Question.Attempt-1)
	}
	guessAdj := 0.0
	if ev.Question.HintUsed {
		guessAdj = hintGuessBonus
	}
	params := types.EffectiveParams{
		Slip:  clamp(band.Slip+deltaNeg-recovery+slipAdj, 0.02, 0.40),
		Guess: clamp(band.Guess+0.5*stressMod+0.3*fatigueMod+guessAdj, 0.05, 0.40),
		Learn: clamp(learnBase-0.5*loadMod-0.4*fatigueMod+recovery, 0.10, 0.60),
	}

	// Step 6: Bayesian posterior with denominator fallback and extreme
	// smoothing.
	prior := clamp(previous, posteriorFloor, 1-posteriorFloor)
	var num, den float64
	if ev.Correct {
		num = prior * (1 - params.Slip)
		den = num + (1-prior)*params.Guess
	} else {
		num = prior * params.Slip
		den = num + (1-prior)*(1-params.Guess)
	}
	posterior := prior
	if den > denominatorMin {
		posterior = num / den
	}
	if posterior > 0.98 {
		posterior -= 0.02 * (1 - scratch.Confidence)
	} else if posterior < 0.02 {
		posterior += 0.02 * scratch.Confidence
	}

	// Step 7: learning transition. A wrong answer is not a learning
	// opportunity; mastery only moves up through the transition on correct.
	mastery := posterior
	if ev.Correct {
		learnConf := params.Learn * (1 + 0.1*scratch.Confidence)
		mastery = posterior + (1-posterior)*learnConf
	}
	mastery = clamp(mastery, masteryFloor, masteryCeil)

	// Step 8: pedagogical adjustments.
	if ev.Correct {
		if rate, ok := scratch.SuccessRate(0); ok && rate >= 0.7 && correctCount(scratch.RecentWindow) >= 3 {
			mastery += math.Max(0, math.Min(0.05, 0.95-mastery))
		}
	} else if accuracyBand(p) == types.StateStruggling {
		mastery = math.Max(mastery, 0.9*prior)
	}
	if math.IsNaN(mastery) {
		err := fmt.Errorf("update %s/%s: non-finite mastery: %w", ev.LearnerID, ev.ConceptID, types.ErrInternal)
		e.log.Error("numerical fallback breached",
			zap.String("learner", ev.LearnerID),
			zap.String("concept", ev.ConceptID),
			zap.Float64("prior", prior),
			zap.Any("params", params))
		if created {
			delete(p.Masteries, ev.ConceptID)
		}
		return failResult(ev, err), err
	}
	scratch.Mastery = mastery

	// Step 9: recovery accounting, before the practice count moves.
	if ev.Correct {
		scratch.RecordSuccess()
	} else {
		scratch.RecordFailure(previous)
	}

	// Per-update wall budget: abort before write-back, no state mutated.
	if e.budget > 0 && time.Since(started) > e.budget {
		err := fmt.Errorf("update %s/%s: budget %s exceeded: %w", ev.LearnerID, ev.ConceptID, e.budget, types.ErrTimeBudget)
		if created {
			delete(p.Masteries, ev.ConceptID)
		}
		return failResult(ev, err), err
	}

	// Step 10: write-back.
	scratch.Observe(ev.Correct, now, e.profiles.ConceptWindow())
	*cm = *scratch
	p.AppendOutcome(ev.Correct, now, e.profiles.OverallWindow())

	// Step 11: post-update propagation, inside the same critical section.
	updates, err := e.transfer.Propagate(ev.LearnerID, ev.ConceptID, cm.Mastery, p.MasteryMap())
	if err == nil {
		for _, u := range updates {
			if rc, ok := p.Masteries[u.ConceptID]; ok {
				rc.Mastery = u.After
			}
		}
	} else {
		// Propagation is auxiliary; the primary update stands.
		e.log.Warn("propagation skipped", zap.String("concept", ev.ConceptID), zap.Error(err))
		updates = nil
	}

	// Step 12: prediction for the next item.
	predicted := clamp(cm.Mastery*(1-params.Slip)+(1-cm.Mastery)*params.Guess, 0.01, 0.99)

	// Step 13: decisions.
	state := learnerState(p, cm)
	lastFive := lastFiveCorrect(p.OverallWindow)
	ready := readiness.Overall >= e.cfg.Engine.ReadyCutoff

	result := types.UpdateResult{
		Success:           true,
		LearnerID:         ev.LearnerID,
		ConceptID:         ev.ConceptID,
		Correct:           ev.Correct,
		PreviousMastery:   previous,
		NewMastery:        cm.Mastery,
		PracticeCount:     cm.PracticeCount,
		PredictedNext:     predicted,
		Params:            params,
		Band:              band.Name,
		RecommendedBand:   recommendBand(cm.Mastery, accuracyBand(p), ready, lastFive),
		State:             state,
		TransferUpdates:   updates,
		ConsecutiveErrors: cm.ConsecutiveErrors,
		ReadyToLearn:      ready,
		Readiness:         readiness.Overall,
	}

	if !ev.Correct && len(readiness.Gaps) > 0 &&
		(state == types.StateStruggling || state == types.StateLearning || state == types.StateRecovery) {
		top := readiness.Gaps[0]
		result.Prerequisite = &types.PrereqSuggestion{
			ConceptID: top.ConceptID,
			Current:   top.Current,
			Required:  top.Required,
			Impact:    top.Impact,
		}
	}

	decision, derr := e.kernel.Evaluate(policy.Signals{
		LearnerID:         ev.LearnerID,
		ConceptID:         ev.ConceptID,
		State:             accuracyBand(p),
		ConsecutiveErrors: cm.ConsecutiveErrors,
		OverloadPermille:  permille(assessment.OverloadRisk),
		StressPermille:    permille(sigma),
		FatiguePermille:   permille(ev.Context.Fatigue),
		LastFiveCorrect:   lastFive,
		RecoveryActive:    cm.InRecovery(),
		PrereqGapID:       gapID(result.Prerequisite),
	})
	if derr != nil {
		// Decision labeling must not fail the numeric update.
		e.log.Warn("policy evaluation failed", zap.String("learner", ev.LearnerID), zap.Error(derr))
	} else {
		result.NeedsBreak = decision.NeedsBreak
		if decision.Tier > types.TierNone {
			result.Intervention = &types.InterventionRecord{
				ID:              uuid.NewString(),
				Tier:            decision.Tier,
				Reason:          interventionReason(cm.ConsecutiveErrors, assessment.OverloadRisk, sigma),
				Recommendations: decision.Recommendations,
			}
		}
	}

	result.FeedbackTag = feedbackTag(state, ev.Correct)

	e.log.Debug("update applied",
		zap.String("learner", ev.LearnerID),
		zap.String("concept", ev.ConceptID),
		zap.Bool("correct", ev.Correct),
		zap.Float64("mastery", cm.Mastery),
		zap.String("state", string(state)))
	return result, nil
}

// validateEvent checks ranges per the event schema before any mutation.
func (e *Engine) validateEvent(ev types.InteractionEvent) error {
	switch {
	case ev.LearnerID == "":
		return types.Validationf("event: empty learner id")
	case ev.ConceptID == "":
		return types.Validationf("event: empty concept id")
	case ev.ResponseTimeMs < 0:
		return types.Validationf("event %s/%s: negative response time", ev.LearnerID, ev.ConceptID)
	case ev.Question.Difficulty < 0 || ev.Question.Difficulty > 1:
		return types.Validationf("event %s/%s: difficulty %.2f outside [0,1]", ev.LearnerID, ev.ConceptID, ev.Question.Difficulty)
	case ev.Question.SolutionSteps < 0:
		return types.Validationf("event %s/%s: negative solution steps", ev.LearnerID, ev.ConceptID)
	case ev.Question.Attempt < 0:
		return types.Validationf("event %s/%s: negative attempt", ev.LearnerID, ev.ConceptID)
	case outOfUnit(ev.Context.StressHint), outOfUnit(ev.Context.CognitiveLoad),
		outOfUnit(ev.Context.Fatigue), outOfUnit(ev.Context.Distraction):
		return types.Validationf("event %s/%s: context signal outside [0,1]", ev.LearnerID, ev.ConceptID)
	case ev.Context.TimePressure < 0:
		return types.Validationf("event %s/%s: negative time pressure", ev.LearnerID, ev.ConceptID)
	}
	if _, err := e.holder.Get().Get(ev.ConceptID); err != nil {
		return err
	}
	return nil
}

func outOfUnit(v float64) bool { return v < 0 || v > 1 }

// timePressureMod contributes to the modulation only outside the neutral
// band [0.8, 1.2] of the allotted/needed ratio.
func timePressureMod(tp float64) float64 {
	if tp <= 0 {
		return 0
	}
	switch {
	case tp > 1.2:
		return (tp - 1) * 0.12
	case tp < 0.8:
		return -(0.8 - tp) * 0.08
	default:
		return 0
	}
}

func failResult(ev types.InteractionEvent, err error) types.UpdateResult {
	return types.UpdateResult{
		Success:     false,
		ErrorKind:   types.ErrorKind(err),
		ErrorReason: err.Error(),
		LearnerID:   ev.LearnerID,
		ConceptID:   ev.ConceptID,
		Correct:     ev.Correct,
	}
}

func feedbackTag(state types.LearnerState, correct bool) string {
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	flavor := "support"
	switch {
	case correct && (state == types.StateStruggling || state == types.StateRecovery):
		flavor = "encourage"
	case correct && state == types.StateMastering:
		flavor = "celebrate"
	case correct:
		flavor = "affirm"
	case state == types.StateMastering || state == types.StateProgressing:
		flavor = "reframe"
	}
	return fmt.Sprintf("%s.%s.%s", state, outcome, flavor)
}

func interventionReason(consecutiveErrors int, overload, stressLevel float64) string {
	switch {
	case consecutiveErrors >= 4:
		return fmt.Sprintf("%d consecutive errors", consecutiveErrors)
	case overload > 0.7:
		return fmt.Sprintf("overload risk %.2f", overload)
	default:
		return fmt.Sprintf("stress level %.2f", stressLevel)
	}
}

func gapID(s *types.PrereqSuggestion) string {
	if s == nil {
		return ""
	}
	return s.ConceptID
}

func correctCount(window []bool) int {
	n := 0
	for _, c := range window {
		if c {
			n++
		}
	}
	return n
}

func permille(v float64) int64 {
	return int64(math.Round(clamp(v, 0, 1) * 1000))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
