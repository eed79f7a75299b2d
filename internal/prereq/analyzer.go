// Package prereq analyzes prerequisite readiness over the concept graph:
// whether a learner is ready for a concept, what the highest-impact gaps
// are, the ordered path to a target, and which successors to try next.
package prereq

import (
	"errors"
	"math"
	"sort"

	"knowtrace/internal/graph"
	"knowtrace/internal/types"
)

// DefaultThreshold is τ, the per-prerequisite mastery target.
const DefaultThreshold = 0.7

// ReadyCutoff is the overall readiness needed to be considered ready.
const ReadyCutoff = 0.8

// masteredCutoff filters already-mastered concepts out of learning paths.
const masteredCutoff = 0.8

// Gap describes one prerequisite shortfall.
type Gap struct {
	ConceptID string  `json:"concept_id"`
	Current   float64 `json:"current"`
	Required  float64 `json:"required"`
	Gap       float64 `json:"gap"`
	Impact    float64 `json:"impact"` // gap weighted by edge strength
}

// Readiness is the result of AnalyzeReadiness.
type Readiness struct {
	ConceptID   string   `json:"concept_id"`
	Ready       bool     `json:"ready"`
	Overall     float64  `json:"overall"` // [0,1]
	Gaps        []Gap    `json:"gaps,omitempty"`
	Recommended []string `json:"recommended,omitempty"` // gap concepts by impact desc
}

// Analyzer evaluates readiness against the current catalog.
type Analyzer struct {
	holder *graph.Holder
}

// NewAnalyzer wraps a catalog holder.
func NewAnalyzer(holder *graph.Holder) *Analyzer {
	return &Analyzer{holder: holder}
}

// AnalyzeReadiness computes the weighted readiness of a learner for a
// concept. Overall readiness is Σ min(1, m_p/τ)·w_p / Σ w_p over direct
// prerequisites; a concept without prerequisites is fully ready.
func (a *Analyzer) AnalyzeReadiness(conceptID string, masteries map[string]float64, tau float64) (Readiness, error) {
	g := a.holder.Get()
	if tau <= 0 {
		tau = DefaultThreshold
	}

	prereqs, err := g.Prerequisites(conceptID)
	if err != nil {
		return Readiness{}, err
	}

	r := Readiness{ConceptID: conceptID, Overall: 1.0}
	if len(prereqs) == 0 {
		r.Ready = true
		return r, nil
	}

	var weighted, totalWeight float64
	for p, w := range prereqs {
		current := masteries[p]
		weighted += math.Min(1, current/tau) * w
		totalWeight += w

		if gap := tau - current; gap > 0 {
			r.Gaps = append(r.Gaps, Gap{
				ConceptID: p,
				Current:   current,
				Required:  tau,
				Gap:       gap,
				Impact:    gap * w,
			})
		}
	}
	r.Overall = weighted / totalWeight
	r.Ready = r.Overall >= ReadyCutoff

	sort.Slice(r.Gaps, func(i, j int) bool {
		if r.Gaps[i].Impact != r.Gaps[j].Impact {
			return r.Gaps[i].Impact > r.Gaps[j].Impact
		}
		return r.Gaps[i].ConceptID < r.Gaps[j].ConceptID
	})
	for _, gp := range r.Gaps {
		r.Recommended = append(r.Recommended, gp.ConceptID)
	}
	return r, nil
}

// LearningPath orders the unmastered prerequisites of target, ending with
// target itself. Already-mastered concepts (≥0.8) are skipped. Ties break by
// lower difficulty, then fewer unresolved dependencies, then id. If the
// induced subgraph somehow contains a cycle, falls back to ordering by
// (-mastery, difficulty) and still appends the target.
func (a *Analyzer) LearningPath(target string, masteries map[string]float64) ([]string, error) {
	g := a.holder.Get()

	all, err := g.AllPrerequisites(target)
	if err != nil {
		return nil, err
	}

	subset := make([]string, 0, len(all))
	for _, id := range all {
		if masteries[id] < masteredCutoff {
			subset = append(subset, id)
		}
	}

	ordered, err := topoWithTies(g, subset, masteries)
	if err != nil {
		if !errors.Is(err, types.ErrCycleDetected) {
			return nil, err
		}
		// Defensive fallback; BuildCatalog normally guarantees a DAG.
		ordered = append([]string(nil), subset...)
		sort.Slice(ordered, func(i, j int) bool {
			mi, mj := masteries[ordered[i]], masteries[ordered[j]]
			if mi != mj {
				return mi > mj
			}
			ci, _ := g.Get(ordered[i])
			cj, _ := g.Get(ordered[j])
			if ci.DifficultyLevel != cj.DifficultyLevel {
				return ci.DifficultyLevel < cj.DifficultyLevel
			}
			return ordered[i] < ordered[j]
		})
	}

	return append(ordered, target), nil
}

// RecommendNext returns up to k successor concepts (via enables edges)
// ordered by readiness descending.
func (a *Analyzer) RecommendNext(currentID string, masteries map[string]float64, k int) ([]string, error) {
	g := a.holder.Get()

	enables, err := g.Enables(currentID)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 3
	}

	type candidate struct {
		id        string
		readiness float64
	}
	candidates := make([]candidate, 0, len(enables))
	for id := range enables {
		r, err := a.AnalyzeReadiness(id, masteries, DefaultThreshold)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{id: id, readiness: r.Overall})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].readiness != candidates[j].readiness {
			return candidates[i].readiness > candidates[j].readiness
		}
		return candidates[i].id < candidates[j].id
	})

	out := make([]string, 0, k)
	for _, c := range candidates {
		if len(out) == k {
			break
		}
		out = append(out, c.id)
	}
	return out, nil
}

// topoWithTies is Kahn's algorithm over the subset with the learning-path
// tie-break: lower difficulty first, then fewer unresolved direct
// dependencies, then id.
func topoWithTies(g *graph.Graph, subset []string, masteries map[string]float64) ([]string, error) {
	in := make(map[string]bool, len(subset))
	for _, id := range subset {
		in[id] = true
	}

	unresolved := make(map[string]int, len(subset))
	indegree := make(map[string]int, len(subset))
	dependents := make(map[string][]string)
	for _, id := range subset {
		prereqs, err := g.Prerequisites(id)
		if err != nil {
			return nil, err
		}
		for p := range prereqs {
			if masteries[p] < masteredCutoff {
				unresolved[id]++
			}
			if in[p] {
				indegree[id]++
				dependents[p] = append(dependents[p], id)
			}
		}
	}

	less := func(x, y string) bool {
		cx, _ := g.Get(x)
		cy, _ := g.Get(y)
		if cx.DifficultyLevel != cy.DifficultyLevel {
			return cx.DifficultyLevel < cy.DifficultyLevel
		}
		if unresolved[x] != unresolved[y] {
			return unresolved[x] < unresolved[y]
		}
		return x < y
	}

	ready := make([]string, 0, len(subset))
	for _, id := range subset {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	order := make([]string, 0, len(subset))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, d := range dependents[id] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
	}

	if len(order) != len(subset) {
		return nil, types.ErrCycleDetected
	}
	return order, nil
}
