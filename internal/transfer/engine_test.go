package transfer

import (
	"math"
	"testing"
	"time"

	"knowtrace/internal/graph"
	"knowtrace/internal/types"
)

func testHolder(t *testing.T) *graph.Holder {
	t.Helper()
	g, err := graph.BuildCatalog([]graph.CatalogRecord{
		{ConceptID: "algebra_basics", Subject: "math", DifficultyLevel: 2},
		{ConceptID: "linear_equations", Subject: "math", DifficultyLevel: 3,
			Prerequisites: []graph.EdgeRecord{{ID: "algebra_basics", Weight: 0.9}},
			Related:       []graph.EdgeRecord{{ID: "quadratic_equations", Weight: 0.5}}},
		{ConceptID: "quadratic_equations", Subject: "math", DifficultyLevel: 3,
			Prerequisites: []graph.EdgeRecord{{ID: "linear_equations", Weight: 0.8}},
			Related:       []graph.EdgeRecord{{ID: "linear_equations", Weight: 0.5}}},
		{ConceptID: "kinematics", Subject: "physics", DifficultyLevel: 3},
		{ConceptID: "dynamics", Subject: "physics", DifficultyLevel: 4},
	})
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}
	return graph.NewHolder(g)
}

func fixedClock() types.FixedClock {
	return types.FixedClock{T: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func TestBoost_PrerequisiteTransfer(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	masteries := map[string]float64{"linear_equations": 0.9}

	boost, contribs, err := e.Boost("u1", "quadratic_equations", masteries, nil)
	if err != nil {
		t.Fatalf("Boost failed: %v", err)
	}
	// Channels: prerequisite 0.8*(0.9-0.75)*0.20 = 0.024, plus the related
	// back-edge 0.5*(0.9-0.75)*0.10 = 0.0075, plus similarity.
	if boost < 0.024 {
		t.Errorf("boost = %.4f, want >= 0.024", boost)
	}
	foundPrereq := false
	for _, c := range contribs {
		if c.Kind == "prerequisite" && c.Source == "linear_equations" {
			foundPrereq = true
			if math.Abs(c.Amount-0.024) > 1e-9 {
				t.Errorf("prerequisite contribution = %.4f, want 0.024", c.Amount)
			}
		}
	}
	if !foundPrereq {
		t.Errorf("missing prerequisite contribution: %+v", contribs)
	}
}

func TestBoost_BelowThresholdNoTransfer(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	masteries := map[string]float64{"linear_equations": 0.5}

	boost, contribs, err := e.Boost("u1", "quadratic_equations", masteries, nil)
	if err != nil {
		t.Fatalf("Boost failed: %v", err)
	}
	if boost != 0 || len(contribs) != 0 {
		t.Errorf("sources below τ_t must not transfer: boost=%.4f %+v", boost, contribs)
	}
}

func TestBoost_CrossSubject(t *testing.T) {
	cfg := Config{CrossSubject: []CrossSubjectRule{{Source: "kinematics", Target: "dynamics", Strength: 0.8}}}
	e := NewEngine(testHolder(t), cfg, fixedClock(), nil)
	masteries := map[string]float64{"kinematics": 0.9}

	boost, contribs, err := e.Boost("u1", "dynamics", masteries, nil)
	if err != nil {
		t.Fatalf("Boost failed: %v", err)
	}
	if boost <= 0 {
		t.Fatalf("expected cross-subject boost, got %.4f", boost)
	}
	found := false
	for _, c := range contribs {
		if c.Kind == "cross-subject" && c.Source == "kinematics" {
			found = true
			want := 0.8 * (0.9 - 0.75) * 0.15
			if math.Abs(c.Amount-want) > 1e-9 {
				t.Errorf("cross-subject amount = %.4f, want %.4f", c.Amount, want)
			}
		}
	}
	if !found {
		t.Errorf("missing cross-subject contribution: %+v", contribs)
	}
}

func TestBoost_Momentum(t *testing.T) {
	clock := fixedClock()
	e := NewEngine(testHolder(t), Config{}, clock, nil)

	recent := make([]Outcome, 0, 6)
	for i := 0; i < 6; i++ {
		recent = append(recent, Outcome{Correct: true, At: clock.T.Add(-time.Hour)})
	}

	boost, contribs, err := e.Boost("u1", "dynamics", nil, recent)
	if err != nil {
		t.Fatalf("Boost failed: %v", err)
	}
	if boost != momentumCap {
		t.Errorf("momentum boost = %.4f, want %.4f", boost, momentumCap)
	}
	if len(contribs) != 1 || contribs[0].Kind != "momentum" {
		t.Errorf("contribs = %+v", contribs)
	}
}

func TestBoost_MomentumIgnoresStaleSuccesses(t *testing.T) {
	clock := fixedClock()
	e := NewEngine(testHolder(t), Config{}, clock, nil)

	recent := make([]Outcome, 0, 6)
	for i := 0; i < 6; i++ {
		recent = append(recent, Outcome{Correct: true, At: clock.T.Add(-48 * time.Hour)})
	}

	boost, _, err := e.Boost("u1", "dynamics", nil, recent)
	if err != nil {
		t.Fatalf("Boost failed: %v", err)
	}
	if boost != 0 {
		t.Errorf("stale successes must not create momentum, got %.4f", boost)
	}
}

func TestBoost_SimilarityTransfer(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	// kinematics and dynamics share a subject and have no graph edges, so
	// only the similarity channel can move mastery between them.
	masteries := map[string]float64{"kinematics": 0.95}

	boost, contribs, err := e.Boost("u1", "dynamics", masteries, nil)
	if err != nil {
		t.Fatalf("Boost failed: %v", err)
	}
	if boost <= 0 {
		t.Fatalf("expected a similarity boost, got %.4f", boost)
	}
	for _, c := range contribs {
		if c.Kind != "similarity" {
			t.Errorf("unexpected channel %+v", c)
		}
	}
}

func TestBoost_CappedAtTotal(t *testing.T) {
	cfg := Config{CrossSubject: []CrossSubjectRule{
		{Source: "kinematics", Target: "quadratic_equations", Strength: 1.0},
	}}
	e := NewEngine(testHolder(t), cfg, fixedClock(), nil)
	masteries := map[string]float64{
		"linear_equations": 0.99,
		"algebra_basics":   0.99,
		"kinematics":       0.99,
	}
	recent := make([]Outcome, 10)
	for i := range recent {
		recent[i] = Outcome{Correct: true, At: fixedClock().T.Add(-time.Minute)}
	}

	boost, _, err := e.Boost("u1", "quadratic_equations", masteries, recent)
	if err != nil {
		t.Fatalf("Boost failed: %v", err)
	}
	if boost > DefaultTotalCap {
		t.Errorf("boost %.4f exceeds cap %.2f", boost, DefaultTotalCap)
	}
}

func TestBoost_UnknownConcept(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	if _, _, err := e.Boost("u1", "topology", nil, nil); err == nil {
		t.Error("expected error for unknown concept")
	}
}

func TestPropagate_RelatedOnly(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	masteries := map[string]float64{
		"quadratic_equations": 0.5,
		"algebra_basics":      0.5, // prerequisite of the source, must not move
	}

	updates, err := e.Propagate("u1", "linear_equations", 0.9, masteries)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if len(updates) != 1 || updates[0].ConceptID != "quadratic_equations" {
		t.Fatalf("updates = %+v", updates)
	}
	want := 0.5 + (0.9-0.5)*0.5*0.1
	if math.Abs(updates[0].After-want) > 1e-9 {
		t.Errorf("After = %.4f, want %.4f", updates[0].After, want)
	}
}

func TestPropagate_BoundedPerEvent(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	masteries := map[string]float64{"quadratic_equations": 0.5}

	updates, err := e.Propagate("u1", "linear_equations", 0.995, masteries)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	for _, u := range updates {
		if d := math.Abs(u.After - u.Before); d > 0.05 {
			t.Errorf("propagation moved %s by %.4f (> 0.05)", u.ConceptID, d)
		}
	}
}

func TestPropagate_LowMasteryPullsDown(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	masteries := map[string]float64{"quadratic_equations": 0.5}

	updates, err := e.Propagate("u1", "linear_equations", 0.1, masteries)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if len(updates) != 1 || updates[0].After >= updates[0].Before {
		t.Errorf("mastery below 0.5 should pull related concepts down: %+v", updates)
	}
}

func TestPropagate_ClampsToEpsilon(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	masteries := map[string]float64{"quadratic_equations": 0.001}

	updates, err := e.Propagate("u1", "linear_equations", 0.1, masteries)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	for _, u := range updates {
		if u.After < 0.005 || u.After > 0.995 {
			t.Errorf("After = %.4f outside [ε, 1-ε]", u.After)
		}
	}
}

func TestPropagate_SkipsUntrackedConcepts(t *testing.T) {
	e := NewEngine(testHolder(t), Config{}, fixedClock(), nil)
	updates, err := e.Propagate("u1", "linear_equations", 0.9, map[string]float64{})
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("untracked related concepts must not be created: %+v", updates)
	}
}
