// Package profile owns the per-learner adaptive state: concept masteries,
// learning-rate adaptation, stress tolerance, struggle counters, and the
// bounded recent-outcome windows the update core reads. All mutation for one
// learner happens under that learner's lock, which the manager hands out.
package profile

import (
	"math"
	"sort"
	"sync"
	"time"

	"knowtrace/internal/graph"
	"knowtrace/internal/transfer"
	"knowtrace/internal/types"
)

// Window defaults, overridable through the manager constructor.
const (
	DefaultConceptWindow = 20
	DefaultOverallWindow = 50
)

// coldStartCeiling caps the initial mastery of a freshly created concept.
const coldStartCeiling = 0.5

// learnedCutoff is the mastery above which a related concept counts as
// already learned for the cold-start multiplier.
const learnedCutoff = 0.7

// epsilon keeps mastery strictly inside (0,1).
const epsilon = 0.005

// momentumHistory bounds the timestamped outcome list kept for transfer
// momentum.
const momentumHistory = 10

// Default parameter seeds for a concept the update core has not banded yet.
const (
	defaultLearningRate = 0.30
	defaultSlipRate     = 0.15
	defaultGuessRate    = 0.25
	defaultDecayRate    = 0.05
)

// RateSeed carries the band parameters a new ConceptMastery starts from.
// Zero fields fall back to the package defaults.
type RateSeed struct {
	Learn float64
	Slip  float64
	Guess float64
	Decay float64
}

// LearnerProfile is the mutable per-learner state. Not safe for concurrent
// use on its own; hold the manager's learner lock.
type LearnerProfile struct {
	LearnerID       string
	Masteries       map[string]*ConceptMastery
	AdaptiveRates   map[string]float64
	StressTolerance float64
	OverallWindow   []bool
	RecentOutcomes  []transfer.Outcome
}

// AppendOutcome pushes one outcome into the overall window and the
// timestamped momentum history, trimming both.
func (p *LearnerProfile) AppendOutcome(correct bool, at time.Time, window int) {
	p.OverallWindow = append(p.OverallWindow, correct)
	if window > 0 && len(p.OverallWindow) > window {
		p.OverallWindow = p.OverallWindow[len(p.OverallWindow)-window:]
	}
	p.RecentOutcomes = append(p.RecentOutcomes, transfer.Outcome{Correct: correct, At: at})
	if len(p.RecentOutcomes) > momentumHistory {
		p.RecentOutcomes = p.RecentOutcomes[len(p.RecentOutcomes)-momentumHistory:]
	}
}

// OverallSuccessRate returns accuracy over the last k overall outcomes.
func (p *LearnerProfile) OverallSuccessRate(k int) (float64, bool) {
	return successRate(p.OverallWindow, k)
}

// MasteryMap returns concept→mastery for every tracked concept.
func (p *LearnerProfile) MasteryMap() map[string]float64 {
	out := make(map[string]float64, len(p.Masteries))
	for id, cm := range p.Masteries {
		out[id] = cm.Mastery
	}
	return out
}

// AdaptiveLearningRate blends the learner's overall and concept-specific
// recent success rates (40/60 when concept data exists) and maps the blend
// through the piecewise schedule. The result is memoized per concept. With
// no history at all the base rate passes through unchanged.
func (p *LearnerProfile) AdaptiveLearningRate(conceptID string, base float64) float64 {
	overall, hasOverall := successRate(p.OverallWindow, 15)

	var blended float64
	var hasData bool
	if cm, ok := p.Masteries[conceptID]; ok {
		if concept, hasConcept := successRate(cm.RecentWindow, 10); hasConcept {
			if hasOverall {
				blended = 0.4*overall + 0.6*concept
			} else {
				blended = concept
			}
			hasData = true
		}
	}
	if !hasData {
		if !hasOverall {
			return base
		}
		blended = overall
	}

	var rate float64
	switch {
	case blended > 0.85:
		rate = math.Min(0.5, base*1.3)
	case blended > 0.7:
		rate = math.Min(0.48, base*1.2)
	case blended < 0.3:
		rate = math.Min(0.45, base*1.3)
	case blended < 0.5:
		rate = math.Min(0.42, base*1.15)
	default:
		rate = base
	}
	if p.AdaptiveRates == nil {
		p.AdaptiveRates = make(map[string]float64)
	}
	p.AdaptiveRates[conceptID] = rate
	return rate
}

// StressModifier converts a stress level into a parameter penalty. The
// eustress band 0.2..0.4 returns a slight negative value (stress helps a
// little there); above 0.6 the penalty steepens. Tolerance attenuates both.
func StressModifier(stress, tolerance float64) float64 {
	stress = clamp01(stress)
	tolerance = clamp01(tolerance)
	switch {
	case stress >= 0.2 && stress <= 0.4:
		return -0.05 * (1 - tolerance)
	case stress > 0.6:
		return stress * 0.15 * (2 - tolerance)
	default:
		return stress * 0.15 * (1.5 - tolerance)
	}
}

// Manager creates and hands out learner profiles. Profile lookup is guarded
// by an internal RWMutex; per-learner mutation is serialized by the lock
// returned from LearnerLock.
type Manager struct {
	mu       sync.RWMutex
	profiles map[string]*LearnerProfile
	locks    map[string]*sync.Mutex

	conceptWindow int
	overallWindow int
	holder        *graph.Holder
	transfer      *transfer.Engine
	clock         types.Clock
}

// NewManager builds a profile manager. The transfer engine may be nil, in
// which case new concepts start from the bare prior.
func NewManager(holder *graph.Holder, te *transfer.Engine, conceptWindow, overallWindow int, clock types.Clock) *Manager {
	if conceptWindow <= 0 {
		conceptWindow = DefaultConceptWindow
	}
	if overallWindow <= 0 {
		overallWindow = DefaultOverallWindow
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Manager{
		profiles:      make(map[string]*LearnerProfile),
		locks:         make(map[string]*sync.Mutex),
		conceptWindow: conceptWindow,
		overallWindow: overallWindow,
		holder:        holder,
		transfer:      te,
		clock:         clock,
	}
}

// ConceptWindow returns the per-concept window bound.
func (m *Manager) ConceptWindow() int { return m.conceptWindow }

// OverallWindow returns the overall window bound.
func (m *Manager) OverallWindow() int { return m.overallWindow }

// LearnerLock returns the mutex serializing updates for one learner.
func (m *Manager) LearnerLock(learnerID string) *sync.Mutex {
	m.mu.RLock()
	l, ok := m.locks[learnerID]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[learnerID]; ok {
		return l
	}
	l = &sync.Mutex{}
	m.locks[learnerID] = l
	return l
}

// GetOrCreate returns the learner's profile, creating it on first sight.
func (m *Manager) GetOrCreate(learnerID string) *LearnerProfile {
	m.mu.RLock()
	p, ok := m.profiles[learnerID]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[learnerID]; ok {
		return p
	}
	p = &LearnerProfile{
		LearnerID:       learnerID,
		Masteries:       make(map[string]*ConceptMastery),
		AdaptiveRates:   make(map[string]float64),
		StressTolerance: 0.5,
	}
	m.profiles[learnerID] = p
	return p
}

// Get returns the profile if the learner has been seen.
func (m *Manager) Get(learnerID string) (*LearnerProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[learnerID]
	return p, ok
}

// Learners lists all known learner ids, sorted.
func (m *Manager) Learners() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetOrCreateMastery returns the learner's state for a concept, creating it
// on first contact. A new concept starts at
//
//	min(0.5, prior + transferBoost·multiplier)
//
// where the multiplier rewards already-learned related concepts (≥3 → 1.3,
// ≥2 → 1.2, else 1.1). Call under the learner's lock.
func (m *Manager) GetOrCreateMastery(p *LearnerProfile, conceptID string, prior float64, seed RateSeed) (*ConceptMastery, bool, error) {
	if cm, ok := p.Masteries[conceptID]; ok {
		return cm, false, nil
	}

	boost := 0.0
	if m.transfer != nil {
		b, _, err := m.transfer.Boost(p.LearnerID, conceptID, p.MasteryMap(), p.RecentOutcomes)
		if err != nil {
			return nil, false, err
		}
		boost = b * m.coldStartMultiplier(p, conceptID)
		if audit := m.transfer.Audit(); audit != nil {
			audit.RecordColdStart(p.LearnerID, conceptID, boost)
		}
	}

	initial := math.Min(coldStartCeiling, prior+boost)
	initial = math.Max(epsilon, math.Min(1-epsilon, initial))

	if seed.Learn <= 0 {
		seed.Learn = defaultLearningRate
	}
	if seed.Slip <= 0 {
		seed.Slip = defaultSlipRate
	}
	if seed.Guess <= 0 {
		seed.Guess = defaultGuessRate
	}
	if seed.Decay <= 0 {
		seed.Decay = defaultDecayRate
	}

	cm := &ConceptMastery{
		ConceptID:    conceptID,
		Mastery:      initial,
		Prior:        math.Max(epsilon, math.Min(1-epsilon, prior)),
		Confidence:   0.3,
		LearningRate: seed.Learn,
		SlipRate:     seed.Slip,
		GuessRate:    seed.Guess,
		DecayRate:    seed.Decay,
	}
	p.Masteries[conceptID] = cm
	return cm, true, nil
}

// coldStartMultiplier scales the cold-start transfer boost by how many
// related concepts the learner has already learned.
func (m *Manager) coldStartMultiplier(p *LearnerProfile, conceptID string) float64 {
	if m.holder == nil {
		return 1.1
	}
	related, err := m.holder.Get().Related(conceptID)
	if err != nil {
		return 1.1
	}
	learned := 0
	for id := range related {
		if cm, ok := p.Masteries[id]; ok && cm.Mastery >= learnedCutoff {
			learned++
		}
	}
	switch {
	case learned >= 3:
		return 1.3
	case learned >= 2:
		return 1.2
	default:
		return 1.1
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
