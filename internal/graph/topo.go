package graph

import (
	"fmt"
	"sort"

	"knowtrace/internal/types"
)

// TopologicalOrder orders the subset so that every prerequisite of a node
// that is also in the subset appears earlier. Kahn's algorithm; ties break
// by (difficulty level, id) so the order is deterministic. Returns
// ErrCycleDetected rather than a partial order when the subset contains a
// prerequisite cycle.
func (g *Graph) TopologicalOrder(subset []string) ([]string, error) {
	in := make(map[string]bool, len(subset))
	for _, id := range subset {
		if !g.Has(id) {
			return nil, fmt.Errorf("%w: %q", types.ErrNotFound, id)
		}
		in[id] = true
	}

	// indegree counts prerequisite edges within the subset.
	indegree := make(map[string]int, len(in))
	dependents := make(map[string][]string, len(in))
	for id := range in {
		c := g.concepts[id]
		for p := range c.Prerequisites {
			if in[p] {
				indegree[id]++
				dependents[p] = append(dependents[p], id)
			}
		}
	}

	ready := make([]string, 0, len(in))
	for id := range in {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	g.sortByDifficulty(ready)

	order := make([]string, 0, len(in))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := make([]string, 0)
		for _, d := range dependents[id] {
			indegree[d]--
			if indegree[d] == 0 {
				released = append(released, d)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			g.sortByDifficulty(ready)
		}
	}

	if len(order) != len(in) {
		stuck := make([]string, 0)
		for id := range in {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: unresolved subset %v", types.ErrCycleDetected, stuck)
	}
	return order, nil
}

// sortByDifficulty orders ids by (difficulty level, id).
func (g *Graph) sortByDifficulty(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.concepts[ids[i]], g.concepts[ids[j]]
		if a.DifficultyLevel != b.DifficultyLevel {
			return a.DifficultyLevel < b.DifficultyLevel
		}
		return a.ID < b.ID
	})
}
