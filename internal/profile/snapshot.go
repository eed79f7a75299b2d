package profile

import (
	"fmt"
	"sort"

	"knowtrace/internal/transfer"
	"knowtrace/internal/types"
)

// Snapshot serializes a learner's full state. The snapshot is deep-copied;
// later updates never alias into it. Masteries are emitted in concept-id
// order so equal states produce equal snapshots.
func (m *Manager) Snapshot(learnerID string) (types.ProfileSnapshot, error) {
	p, ok := m.Get(learnerID)
	if !ok {
		return types.ProfileSnapshot{}, fmt.Errorf("snapshot learner %q: %w", learnerID, types.ErrNotFound)
	}

	lock := m.LearnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()

	snap := types.ProfileSnapshot{
		LearnerID:       p.LearnerID,
		StressTolerance: p.StressTolerance,
		OverallWindow:   append([]bool(nil), p.OverallWindow...),
		TakenAt:         m.clock.Now(),
	}
	for _, o := range p.RecentOutcomes {
		snap.RecentOutcomes = append(snap.RecentOutcomes, types.OutcomeSnapshot{Correct: o.Correct, At: o.At})
	}
	if len(p.AdaptiveRates) > 0 {
		snap.AdaptiveRates = make(map[string]float64, len(p.AdaptiveRates))
		for id, r := range p.AdaptiveRates {
			snap.AdaptiveRates[id] = r
		}
	}

	ids := make([]string, 0, len(p.Masteries))
	for id := range p.Masteries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cm := p.Masteries[id]
		snap.Masteries = append(snap.Masteries, types.MasterySnapshot{
			ConceptID:         cm.ConceptID,
			Mastery:           cm.Mastery,
			Prior:             cm.Prior,
			Confidence:        cm.Confidence,
			PracticeCount:     cm.PracticeCount,
			LastInteraction:   cm.LastInteraction,
			LearningRate:      cm.LearningRate,
			SlipRate:          cm.SlipRate,
			GuessRate:         cm.GuessRate,
			DecayRate:         cm.DecayRate,
			ConsecutiveErrors: cm.ConsecutiveErrors,
			RecentWindow:      append([]bool(nil), cm.RecentWindow...),
			RecoveryBoost:     cm.RecoveryBoost,
			EnhancedBoost:     cm.EnhancedBoost,
			StruggleCount:     cm.StruggleCount,
		})
	}
	return snap, nil
}

// Restore installs a snapshot, replacing any in-memory state for that
// learner. A restored profile continues exactly where the snapshot left off.
func (m *Manager) Restore(snap types.ProfileSnapshot) error {
	if snap.LearnerID == "" {
		return types.Validationf("restore: empty learner id")
	}

	p := &LearnerProfile{
		LearnerID:       snap.LearnerID,
		Masteries:       make(map[string]*ConceptMastery, len(snap.Masteries)),
		AdaptiveRates:   make(map[string]float64, len(snap.AdaptiveRates)),
		StressTolerance: snap.StressTolerance,
		OverallWindow:   append([]bool(nil), snap.OverallWindow...),
	}
	for _, o := range snap.RecentOutcomes {
		p.RecentOutcomes = append(p.RecentOutcomes, transfer.Outcome{Correct: o.Correct, At: o.At})
	}
	for id, r := range snap.AdaptiveRates {
		p.AdaptiveRates[id] = r
	}
	for _, ms := range snap.Masteries {
		if ms.ConceptID == "" {
			return types.Validationf("restore %s: mastery with empty concept id", snap.LearnerID)
		}
		p.Masteries[ms.ConceptID] = &ConceptMastery{
			ConceptID:         ms.ConceptID,
			Mastery:           ms.Mastery,
			Prior:             ms.Prior,
			Confidence:        ms.Confidence,
			PracticeCount:     ms.PracticeCount,
			LastInteraction:   ms.LastInteraction,
			LearningRate:      ms.LearningRate,
			SlipRate:          ms.SlipRate,
			GuessRate:         ms.GuessRate,
			DecayRate:         ms.DecayRate,
			ConsecutiveErrors: ms.ConsecutiveErrors,
			RecentWindow:      append([]bool(nil), ms.RecentWindow...),
			RecoveryBoost:     ms.RecoveryBoost,
			EnhancedBoost:     ms.EnhancedBoost,
			StruggleCount:     ms.StruggleCount,
		}
	}

	lock := m.LearnerLock(snap.LearnerID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	m.profiles[snap.LearnerID] = p
	m.mu.Unlock()
	return nil
}
