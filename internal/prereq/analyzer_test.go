package prereq

import (
	"errors"
	"math"
	"testing"

	"knowtrace/internal/graph"
	"knowtrace/internal/types"
)

func testHolder(t *testing.T) *graph.Holder {
	t.Helper()
	g, err := graph.BuildCatalog([]graph.CatalogRecord{
		{ConceptID: "algebra_basics", Subject: "math", DifficultyLevel: 2,
			Enables: []graph.EdgeRecord{{ID: "linear_equations", Weight: 0.9}}},
		{ConceptID: "linear_equations", Subject: "math", DifficultyLevel: 3,
			Prerequisites: []graph.EdgeRecord{{ID: "algebra_basics", Weight: 0.9}},
			Enables:       []graph.EdgeRecord{{ID: "quadratic_equations", Weight: 0.8}}},
		{ConceptID: "quadratic_equations", Subject: "math", DifficultyLevel: 4,
			Prerequisites: []graph.EdgeRecord{
				{ID: "linear_equations", Weight: 0.8},
				{ID: "algebra_basics", Weight: 0.6},
			}},
		{ConceptID: "fractions", Subject: "math", DifficultyLevel: 1},
	})
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}
	return graph.NewHolder(g)
}

func TestAnalyzeReadiness_NoPrereqs(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	r, err := a.AnalyzeReadiness("fractions", nil, 0)
	if err != nil {
		t.Fatalf("AnalyzeReadiness failed: %v", err)
	}
	if !r.Ready || r.Overall != 1.0 {
		t.Errorf("concept without prerequisites must be ready, got %+v", r)
	}
}

func TestAnalyzeReadiness_WeightedAverage(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	masteries := map[string]float64{
		"linear_equations": 0.35, // min(1, 0.35/0.7) = 0.5
		"algebra_basics":   0.7,  // min(1, 0.7/0.7)  = 1.0
	}
	r, err := a.AnalyzeReadiness("quadratic_equations", masteries, 0.7)
	if err != nil {
		t.Fatalf("AnalyzeReadiness failed: %v", err)
	}
	want := (0.5*0.8 + 1.0*0.6) / (0.8 + 0.6)
	if math.Abs(r.Overall-want) > 1e-9 {
		t.Errorf("Overall = %.4f, want %.4f", r.Overall, want)
	}
	if r.Ready {
		t.Error("should not be ready below cutoff 0.8")
	}
}

func TestAnalyzeReadiness_ReadyCutoff(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	masteries := map[string]float64{
		"linear_equations": 0.9,
		"algebra_basics":   0.9,
	}
	r, err := a.AnalyzeReadiness("quadratic_equations", masteries, 0.7)
	if err != nil {
		t.Fatalf("AnalyzeReadiness failed: %v", err)
	}
	if !r.Ready || r.Overall < ReadyCutoff {
		t.Errorf("expected ready, got %+v", r)
	}
	if len(r.Gaps) != 0 {
		t.Errorf("expected no gaps, got %v", r.Gaps)
	}
}

func TestAnalyzeReadiness_GapOrdering(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	// Equal mastery: the higher-weight edge (linear_equations, 0.8) has the
	// larger impact and must come first.
	masteries := map[string]float64{
		"linear_equations": 0.2,
		"algebra_basics":   0.2,
	}
	r, err := a.AnalyzeReadiness("quadratic_equations", masteries, 0.7)
	if err != nil {
		t.Fatalf("AnalyzeReadiness failed: %v", err)
	}
	if len(r.Gaps) != 2 {
		t.Fatalf("expected 2 gaps, got %v", r.Gaps)
	}
	if r.Gaps[0].ConceptID != "linear_equations" {
		t.Errorf("highest-impact gap should be linear_equations, got %s", r.Gaps[0].ConceptID)
	}
	wantImpact := (0.7 - 0.2) * 0.8
	if math.Abs(r.Gaps[0].Impact-wantImpact) > 1e-9 {
		t.Errorf("Impact = %.4f, want %.4f", r.Gaps[0].Impact, wantImpact)
	}
	if r.Recommended[0] != "linear_equations" {
		t.Errorf("Recommended[0] = %s", r.Recommended[0])
	}
}

func TestAnalyzeReadiness_NotFound(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	if _, err := a.AnalyzeReadiness("topology", nil, 0.7); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLearningPath(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	masteries := map[string]float64{
		"algebra_basics":   0.2,
		"linear_equations": 0.2,
	}
	path, err := a.LearningPath("quadratic_equations", masteries)
	if err != nil {
		t.Fatalf("LearningPath failed: %v", err)
	}
	want := []string{"algebra_basics", "linear_equations", "quadratic_equations"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Errorf("path = %v, want %v", path, want)
		}
	}
}

func TestLearningPath_SkipsMastered(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	masteries := map[string]float64{
		"algebra_basics":   0.95,
		"linear_equations": 0.3,
	}
	path, err := a.LearningPath("quadratic_equations", masteries)
	if err != nil {
		t.Fatalf("LearningPath failed: %v", err)
	}
	if len(path) != 2 || path[0] != "linear_equations" || path[1] != "quadratic_equations" {
		t.Errorf("path = %v", path)
	}
}

func TestLearningPath_EndsWithTarget(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	path, err := a.LearningPath("fractions", nil)
	if err != nil {
		t.Fatalf("LearningPath failed: %v", err)
	}
	if len(path) != 1 || path[0] != "fractions" {
		t.Errorf("path = %v", path)
	}
}

func TestRecommendNext(t *testing.T) {
	a := NewAnalyzer(testHolder(t))
	masteries := map[string]float64{"algebra_basics": 0.9}

	// After algebra_basics, linear_equations is enabled and fully ready.
	next, err := a.RecommendNext("algebra_basics", masteries, 3)
	if err != nil {
		t.Fatalf("RecommendNext failed: %v", err)
	}
	if len(next) != 1 || next[0] != "linear_equations" {
		t.Errorf("next = %v", next)
	}

	// k limits the result count.
	next, err = a.RecommendNext("algebra_basics", masteries, 0)
	if err != nil {
		t.Fatalf("RecommendNext failed: %v", err)
	}
	if len(next) != 1 {
		t.Errorf("next = %v", next)
	}
}
