// Package engine is the knowledge-tracing update core. It combines the
// concept graph, prerequisite analyzer, cognitive-load assessor, stress
// detector, transfer engine, and per-learner profiles into a single
// per-interaction mastery update, and exposes the narrow operation surface
// hosts call. Per-learner state is serialized by a per-learner mutex; global
// structures are read-only and shared.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"knowtrace/internal/cogload"
	"knowtrace/internal/config"
	"knowtrace/internal/graph"
	"knowtrace/internal/policy"
	"knowtrace/internal/prereq"
	"knowtrace/internal/profile"
	"knowtrace/internal/stress"
	"knowtrace/internal/timealloc"
	"knowtrace/internal/transfer"
	"knowtrace/internal/types"
)

// Store persists learner snapshots between sessions. The engine is agnostic
// to the backing storage.
type Store interface {
	SaveSnapshot(ctx context.Context, snap types.ProfileSnapshot) error
	LoadLatest(ctx context.Context, learnerID string) (types.ProfileSnapshot, error)
	SaveAudit(ctx context.Context, entries []transfer.AuditEntry) error
}

// Engine owns all per-learner state and the read-only catalog holder.
type Engine struct {
	cfg      *config.Config
	holder   *graph.Holder
	profiles *profile.Manager
	analyzer *prereq.Analyzer
	detector *stress.Detector
	transfer *transfer.Engine
	kernel   *policy.Kernel
	clock    types.Clock
	log      *zap.Logger
	budget   time.Duration
	store    Store
}

// New wires an engine from configuration. The holder must already carry a
// validated catalog; logger and clock may be nil.
func New(cfg *config.Config, holder *graph.Holder, clock types.Clock, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	budget, err := cfg.UpdateBudgetDuration()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	kernel, err := policy.NewKernel()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	audit := transfer.NewAuditLog(cfg.Transfer.AuditCapacity, cfg.Transfer.AuditMinAmount)
	rules := make([]transfer.CrossSubjectRule, 0, len(cfg.Transfer.CrossSubject))
	for _, r := range cfg.Transfer.CrossSubject {
		rules = append(rules, transfer.CrossSubjectRule{Source: r.Source, Target: r.Target, Strength: r.Strength})
	}
	te := transfer.NewEngine(holder, transfer.Config{
		MasteryThreshold: cfg.Transfer.MasteryThreshold,
		TotalCap:         cfg.Transfer.TotalCap,
		CrossSubject:     rules,
	}, clock, audit)

	return &Engine{
		cfg:      cfg,
		holder:   holder,
		profiles: profile.NewManager(holder, te, cfg.Engine.ConceptWindow, cfg.Engine.OverallWindow, clock),
		analyzer: prereq.NewAnalyzer(holder),
		detector: stress.NewDetector(cfg.Stress.Window, stress.Thresholds{
			Mild:     cfg.Stress.MildLevel,
			Moderate: cfg.Stress.ModerateLevel,
			High:     cfg.Stress.HighLevel,
		}),
		transfer: te,
		kernel:   kernel,
		clock:    clock,
		log:      logger,
		budget:   budget,
	}, nil
}

// AttachStore enables snapshot persistence.
func (e *Engine) AttachStore(s Store) { e.store = s }

// Catalog returns the current catalog holder.
func (e *Engine) Catalog() *graph.Holder { return e.holder }

// Audit returns the transfer audit log.
func (e *Engine) Audit() *transfer.AuditLog { return e.transfer.Audit() }

// LoadCatalog builds a catalog from records and installs it atomically. On
// any validation failure, including prerequisite cycles, the prior catalog
// stays in effect.
func (e *Engine) LoadCatalog(records []graph.CatalogRecord) error {
	g, err := graph.BuildCatalog(records)
	if err != nil {
		e.log.Warn("catalog rejected", zap.Error(err))
		return err
	}
	e.holder.Swap(g)
	e.log.Info("catalog installed", zap.Int("concepts", g.Len()))
	return nil
}

// Profile snapshots a learner's full state.
func (e *Engine) Profile(learnerID string) (types.ProfileSnapshot, error) {
	return e.profiles.Snapshot(learnerID)
}

// RestoreProfile installs a snapshot, replacing in-memory state.
func (e *Engine) RestoreProfile(snap types.ProfileSnapshot) error {
	return e.profiles.Restore(snap)
}

// Persist writes the learner's snapshot through the attached store.
func (e *Engine) Persist(ctx context.Context, learnerID string) error {
	if e.store == nil {
		return nil
	}
	snap, err := e.profiles.Snapshot(learnerID)
	if err != nil {
		return err
	}
	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("persist %s: %w", learnerID, err)
	}
	return e.store.SaveAudit(ctx, e.transfer.Audit().ForLearner(learnerID))
}

// Learners lists all known learner ids.
func (e *Engine) Learners() []string { return e.profiles.Learners() }

// LearningPath orders the unmastered prerequisite closure of target for the
// learner, ending at the target itself.
func (e *Engine) LearningPath(target, learnerID string) ([]string, error) {
	return e.analyzer.LearningPath(target, e.masteries(learnerID))
}

// RecommendNext suggests up to k concepts enabled by the current one,
// ordered by the learner's readiness.
func (e *Engine) RecommendNext(currentID, learnerID string, k int) ([]string, error) {
	return e.analyzer.RecommendNext(currentID, e.masteries(learnerID), k)
}

// Readiness evaluates prerequisite readiness for a concept.
func (e *Engine) Readiness(conceptID, learnerID string) (prereq.Readiness, error) {
	return e.analyzer.AnalyzeReadiness(conceptID, e.masteries(learnerID), e.cfg.Engine.ReadinessThreshold)
}

// AllocateTime computes a per-question time budget. Pure; no state changes.
func (e *Engine) AllocateTime(req types.TimeRequest) types.TimeAllocation {
	return timealloc.Allocate(req)
}

// AssessLoad computes the cognitive-load decomposition. Pure.
func (e *Engine) AssessLoad(in cogload.Input) types.LoadAssessment {
	return cogload.Assess(in)
}

// DetectStress feeds one behavioral sample into the learner's stress window
// and returns the fused reading.
func (e *Engine) DetectStress(learnerID string, sample types.StressSample) types.StressReading {
	return e.detector.Observe(learnerID, sample)
}

// State reports the learner's coarse state band from the overall window.
func (e *Engine) State(learnerID string) types.LearnerState {
	p, ok := e.profiles.Get(learnerID)
	if !ok {
		return types.StateNew
	}
	lock := e.profiles.LearnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()
	return accuracyBand(p)
}

// RecommendedBand returns the difficulty band the engine would choose for
// the learner's next question on a concept, from current state.
func (e *Engine) RecommendedBand(conceptID, learnerID string) (types.DifficultyBand, error) {
	g := e.holder.Get()
	if _, err := g.Get(conceptID); err != nil {
		return "", err
	}
	masteries := e.masteries(learnerID)
	ready := false
	if r, err := e.analyzer.AnalyzeReadiness(conceptID, masteries, e.cfg.Engine.ReadinessThreshold); err == nil {
		ready = r.Overall >= e.cfg.Engine.ReadyCutoff
	}

	m := masteries[conceptID]
	state := types.StateNew
	correct := -1
	if p, ok := e.profiles.Get(learnerID); ok {
		lock := e.profiles.LearnerLock(learnerID)
		lock.Lock()
		state = accuracyBand(p)
		correct = lastFiveCorrect(p.OverallWindow)
		lock.Unlock()
	}
	return recommendBand(m, state, ready, correct), nil
}

// masteries returns the learner's concept→mastery map, empty when unknown.
// Copies under the learner lock so callers never alias live state.
func (e *Engine) masteries(learnerID string) map[string]float64 {
	p, ok := e.profiles.Get(learnerID)
	if !ok {
		return map[string]float64{}
	}
	lock := e.profiles.LearnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()
	return p.MasteryMap()
}

// learnerState derives the coarse state band: no history means new, an
// active recovery boost wins, otherwise the overall-window accuracy bands.
func learnerState(p *profile.LearnerProfile, cm *profile.ConceptMastery) types.LearnerState {
	acc, ok := p.OverallSuccessRate(0)
	if !ok {
		return types.StateNew
	}
	if cm != nil && cm.InRecovery() {
		return types.StateRecovery
	}
	switch {
	case acc < 0.3:
		return types.StateStruggling
	case acc < 0.6:
		return types.StateLearning
	case acc < 0.8:
		return types.StateProgressing
	default:
		return types.StateMastering
	}
}

// accuracyBand is the pure accuracy view used by the policy kernel, without
// the recovery override.
func accuracyBand(p *profile.LearnerProfile) types.LearnerState {
	acc, ok := p.OverallSuccessRate(0)
	if !ok {
		return types.StateNew
	}
	switch {
	case acc < 0.3:
		return types.StateStruggling
	case acc < 0.6:
		return types.StateLearning
	case acc < 0.8:
		return types.StateProgressing
	default:
		return types.StateMastering
	}
}

// lastFiveCorrect counts correct answers in the last five outcomes, or -1
// when fewer than five exist.
func lastFiveCorrect(window []bool) int {
	if len(window) < 5 {
		return -1
	}
	n := 0
	for _, c := range window[len(window)-5:] {
		if c {
			n++
		}
	}
	return n
}
