package graph

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"knowtrace/internal/types"
)

// EdgeRecord is one weighted edge in a catalog file.
type EdgeRecord struct {
	ID     string  `yaml:"id" json:"id"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// CatalogRecord is the on-disk form of a concept.
type CatalogRecord struct {
	ConceptID       string       `yaml:"concept_id" json:"concept_id"`
	Name            string       `yaml:"name" json:"name"`
	Subject         string       `yaml:"subject" json:"subject"`
	DifficultyLevel int          `yaml:"difficulty_level" json:"difficulty_level"`
	Prerequisites   []EdgeRecord `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	Enables         []EdgeRecord `yaml:"enables,omitempty" json:"enables,omitempty"`
	Related         []EdgeRecord `yaml:"related,omitempty" json:"related,omitempty"`
}

// LoadCatalogFile reads and validates a yaml catalog. On any validation
// failure the returned graph is nil and the caller's previous catalog, if
// any, stays in effect.
func LoadCatalogFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var records []CatalogRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return BuildCatalog(records)
}

// BuildCatalog validates catalog records and constructs the immutable graph.
// Enforced invariants: unique ids, weights in (0,1], no self-loops, all edge
// targets present, and an acyclic prerequisite relation.
func BuildCatalog(records []CatalogRecord) (*Graph, error) {
	if len(records) == 0 {
		return nil, types.Validationf("catalog is empty")
	}

	concepts := make(map[string]*Concept, len(records))
	for _, r := range records {
		if r.ConceptID == "" {
			return nil, types.Validationf("catalog record with empty concept_id")
		}
		if _, dup := concepts[r.ConceptID]; dup {
			return nil, types.Validationf("duplicate concept id %q", r.ConceptID)
		}
		if r.DifficultyLevel < 1 || r.DifficultyLevel > 5 {
			return nil, types.Validationf("concept %q: difficulty_level %d out of 1..5", r.ConceptID, r.DifficultyLevel)
		}
		concepts[r.ConceptID] = &Concept{
			ID:              r.ConceptID,
			Name:            r.Name,
			Subject:         r.Subject,
			DifficultyLevel: r.DifficultyLevel,
			Prerequisites:   map[string]float64{},
			Enables:         map[string]float64{},
			Related:         map[string]float64{},
		}
	}

	// Second pass: edges, now that all ids are known.
	for _, r := range records {
		c := concepts[r.ConceptID]
		for _, kind := range []struct {
			name  string
			edges []EdgeRecord
			dst   map[string]float64
		}{
			{"prerequisite", r.Prerequisites, c.Prerequisites},
			{"enables", r.Enables, c.Enables},
			{"related", r.Related, c.Related},
		} {
			for _, e := range kind.edges {
				if e.ID == r.ConceptID {
					return nil, types.Validationf("concept %q: %s self-loop", r.ConceptID, kind.name)
				}
				if _, ok := concepts[e.ID]; !ok {
					return nil, types.Validationf("concept %q: %s edge to unknown concept %q", r.ConceptID, kind.name, e.ID)
				}
				if e.Weight <= 0 || e.Weight > 1 {
					return nil, types.Validationf("concept %q: %s edge weight %.3f out of (0,1]", r.ConceptID, kind.name, e.Weight)
				}
				kind.dst[e.ID] = e.Weight
			}
		}
	}

	g := &Graph{concepts: concepts, subjects: map[string]int{}}

	// Dense subject indexes in sorted order so embeddings are stable across
	// loads of the same catalog.
	subjects := make([]string, 0)
	seen := map[string]bool{}
	for _, c := range concepts {
		if !seen[c.Subject] {
			seen[c.Subject] = true
			subjects = append(subjects, c.Subject)
		}
	}
	sort.Strings(subjects)
	for i, s := range subjects {
		g.subjects[s] = i
	}

	if cycle := g.findPrereqCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrCycleDetected, strings.Join(cycle, " -> "))
	}
	return g, nil
}

// findPrereqCycle runs a colored DFS over prerequisite edges and returns a
// witness path when the relation is not a DAG.
func (g *Graph) findPrereqCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.concepts))
	parent := make(map[string]string)

	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		c := g.concepts[id]

		prereqs := make([]string, 0, len(c.Prerequisites))
		for p := range c.Prerequisites {
			prereqs = append(prereqs, p)
		}
		sort.Strings(prereqs)

		for _, p := range prereqs {
			switch color[p] {
			case white:
				parent[p] = id
				if visit(p) {
					return true
				}
			case gray:
				// Reconstruct the witness from p back around to p.
				cycle = []string{p}
				for cur := id; cur != p && cur != ""; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, p)
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.Concepts() {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
