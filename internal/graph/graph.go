// Package graph holds the static concept catalog: concepts with
// prerequisite / enables / related edges and per-concept difficulty. A Graph
// is built once from a catalog file and never mutated, so all accessors are
// safe for concurrent readers. Hot reloads swap a whole new Graph through a
// Holder.
package graph

import (
	"fmt"
	"sort"
	"sync/atomic"

	"knowtrace/internal/types"
)

// Concept is one catalog entry. Edge maps are keyed by target concept id
// with strength in (0,1].
type Concept struct {
	ID              string
	Name            string
	Subject         string
	DifficultyLevel int // 1..5
	Prerequisites   map[string]float64
	Enables         map[string]float64
	Related         map[string]float64
}

// NormalizedDifficulty maps the 1..5 level onto [0,1].
func (c *Concept) NormalizedDifficulty() float64 {
	return float64(c.DifficultyLevel-1) / 4.0
}

// Graph is the immutable concept catalog.
type Graph struct {
	concepts map[string]*Concept
	subjects map[string]int // subject tag -> dense index, for embeddings
}

// Get returns a concept by id.
func (g *Graph) Get(id string) (*Concept, error) {
	c, ok := g.concepts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrNotFound, id)
	}
	return c, nil
}

// Has reports whether the concept exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.concepts[id]
	return ok
}

// Len returns the number of concepts.
func (g *Graph) Len() int { return len(g.concepts) }

// Concepts returns all concept ids in sorted order.
func (g *Graph) Concepts() []string {
	ids := make([]string, 0, len(g.concepts))
	for id := range g.concepts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SubjectIndex returns a dense index for a subject tag, for embedding
// construction. Unknown subjects map to 0.
func (g *Graph) SubjectIndex(subject string) int {
	return g.subjects[subject]
}

// SubjectCount returns the number of distinct subject tags in the catalog.
func (g *Graph) SubjectCount() int {
	if len(g.subjects) == 0 {
		return 1
	}
	return len(g.subjects)
}

// edgeCopy defends the immutable graph against caller mutation.
func edgeCopy(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Prerequisites returns the direct prerequisite edges of a concept.
func (g *Graph) Prerequisites(id string) (map[string]float64, error) {
	c, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return edgeCopy(c.Prerequisites), nil
}

// Enables returns the direct enables edges of a concept.
func (g *Graph) Enables(id string) (map[string]float64, error) {
	c, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return edgeCopy(c.Enables), nil
}

// Related returns the related edges of a concept. Relatedness may be cyclic;
// it is only used for one-hop transfer propagation where cycles are harmless.
func (g *Graph) Related(id string) (map[string]float64, error) {
	c, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return edgeCopy(c.Related), nil
}

// AllPrerequisites returns the transitive closure over prerequisite edges
// only, sorted. The target itself is not included.
func (g *Graph) AllPrerequisites(id string) ([]string, error) {
	if _, err := g.Get(id); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c := g.concepts[cur]
		if c == nil {
			continue
		}
		for p := range c.Prerequisites {
			if !seen[p] {
				seen[p] = true
				stack = append(stack, p)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Holder publishes the current Graph and lets the watcher swap in a
// replacement atomically. Readers never observe a partially loaded catalog.
type Holder struct {
	p atomic.Pointer[Graph]
}

// NewHolder wraps an initial graph.
func NewHolder(g *Graph) *Holder {
	h := &Holder{}
	h.p.Store(g)
	return h
}

// Get returns the current graph.
func (h *Holder) Get() *Graph { return h.p.Load() }

// Swap installs a replacement graph.
func (h *Holder) Swap(g *Graph) { h.p.Store(g) }
