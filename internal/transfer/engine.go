// Package transfer moves learning across related concepts: a pre-update
// boost for a target concept derived from what the learner already knows,
// and a one-hop post-update propagation to related concepts. Boosts above a
// noise floor are recorded in a bounded audit ring.
package transfer

import (
	"math"
	"sort"
	"time"

	"knowtrace/internal/graph"
	"knowtrace/internal/types"
)

// Boost coefficients per transfer channel.
const (
	prereqCoeff     = 0.20
	relatedCoeff    = 0.10
	crossCoeff      = 0.15
	similarityCoeff = 0.08
	momentumCap     = 0.10
	momentumFactor  = 0.15
)

// DefaultMasteryThreshold is τ_t: a source concept transfers only above it.
const DefaultMasteryThreshold = 0.75

// DefaultTotalCap bounds the combined boost.
const DefaultTotalCap = 0.3

// similarityFloor is the minimum cosine similarity that transfers.
const similarityFloor = 0.7

// propagationCoeff scales post-update propagation; with edge weights ≤1 the
// per-concept change is bounded by 0.05 per event.
const propagationCoeff = 0.1

// epsilon keeps propagated masteries away from 0 and 1.
const epsilon = 0.005

// CrossSubjectRule is one entry of the cross-subject transfer catalog.
type CrossSubjectRule struct {
	Source   string
	Target   string
	Strength float64
}

// Contribution explains one component of a boost.
type Contribution struct {
	Kind   string  `json:"kind"` // prerequisite, related, cross-subject, momentum, similarity
	Source string  `json:"source,omitempty"`
	Amount float64 `json:"amount"`
}

// Outcome is one recent interaction used for temporal momentum.
type Outcome struct {
	Correct bool
	At      time.Time
}

// Config tunes the transfer engine.
type Config struct {
	MasteryThreshold float64
	TotalCap         float64
	CrossSubject     []CrossSubjectRule
}

// Engine computes transfer boosts against the current catalog.
type Engine struct {
	holder *graph.Holder
	cfg    Config
	clock  types.Clock
	audit  *AuditLog
}

// NewEngine builds a transfer engine. A nil clock falls back to the system
// clock; audit may be nil to disable recording.
func NewEngine(holder *graph.Holder, cfg Config, clock types.Clock, audit *AuditLog) *Engine {
	if cfg.MasteryThreshold <= 0 {
		cfg.MasteryThreshold = DefaultMasteryThreshold
	}
	if cfg.TotalCap <= 0 {
		cfg.TotalCap = DefaultTotalCap
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Engine{holder: holder, cfg: cfg, clock: clock, audit: audit}
}

// Audit exposes the engine's audit log (may be nil).
func (e *Engine) Audit() *AuditLog { return e.audit }

// Boost returns the pre-update transfer boost for a target concept, in
// [0, TotalCap], together with the per-channel contributions.
func (e *Engine) Boost(learnerID, targetID string, masteries map[string]float64, recent []Outcome) (float64, []Contribution, error) {
	g := e.holder.Get()
	target, err := g.Get(targetID)
	if err != nil {
		return 0, nil, err
	}

	tau := e.cfg.MasteryThreshold
	var contributions []Contribution
	total := 0.0

	add := func(kind, source string, amount float64) {
		if amount <= 0 {
			return
		}
		total += amount
		contributions = append(contributions, Contribution{Kind: kind, Source: source, Amount: amount})
	}

	// Prerequisite transfer: mastered prerequisites ease the target.
	for p, w := range target.Prerequisites {
		if m := masteries[p]; m > tau {
			add("prerequisite", p, w*(m-tau)*prereqCoeff)
		}
	}

	// Related-concept transfer.
	for r, w := range target.Related {
		if m := masteries[r]; m > tau {
			add("related", r, w*(m-tau)*relatedCoeff)
		}
	}

	// Cross-subject transfer from the configured rule table.
	for _, rule := range e.cfg.CrossSubject {
		if rule.Target != targetID {
			continue
		}
		if m := masteries[rule.Source]; m > tau {
			add("cross-subject", rule.Source, rule.Strength*(m-tau)*crossCoeff)
		}
	}

	// Temporal momentum: a recent success run transfers confidence.
	if amount := e.momentum(recent); amount > 0 {
		add("momentum", "", amount)
	}

	// Similarity transfer over concept embeddings.
	for _, sim := range e.topSimilar(g, target, masteries, 3) {
		add("similarity", sim.id, sim.similarity*(masteries[sim.id]-tau)*similarityCoeff)
	}

	if total > e.cfg.TotalCap {
		total = e.cfg.TotalCap
	}

	if e.audit != nil {
		e.audit.RecordBoost(learnerID, targetID, total, contributions)
	}
	return total, contributions, nil
}

// momentum returns the temporal-momentum contribution from the last ≤10
// outcomes: more than 3 successes within the past 24 hours earn a boost
// proportional to the success rate.
func (e *Engine) momentum(recent []Outcome) float64 {
	if len(recent) == 0 {
		return 0
	}
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	cutoff := e.clock.Now().Add(-24 * time.Hour)
	successes := 0
	for _, o := range recent {
		if o.Correct && o.At.After(cutoff) {
			successes++
		}
	}
	if successes <= 3 {
		return 0
	}
	rate := float64(successes) / float64(len(recent))
	return math.Min(momentumCap, rate*momentumFactor)
}

type similar struct {
	id         string
	similarity float64
}

// topSimilar finds up to k concepts the learner has mastered (above τ_t)
// whose embedding is close to the target's.
func (e *Engine) topSimilar(g *graph.Graph, target *graph.Concept, masteries map[string]float64, k int) []similar {
	tv := embed(g, target)
	tau := e.cfg.MasteryThreshold

	var candidates []similar
	for _, id := range g.Concepts() {
		if id == target.ID {
			continue
		}
		if masteries[id] <= tau {
			continue
		}
		c, err := g.Get(id)
		if err != nil {
			continue
		}
		sim := cosine(tv, embed(g, c))
		if sim > similarityFloor {
			candidates = append(candidates, similar{id: id, similarity: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Propagate performs the one-hop post-update propagation from source to its
// related concepts. Only related edges participate; prerequisite and enables
// edges already influenced initialization and the pre-update boost. Returns
// the applied updates; the caller writes them back to the profile.
func (e *Engine) Propagate(learnerID, sourceID string, newMastery float64, masteries map[string]float64) ([]types.TransferUpdate, error) {
	g := e.holder.Get()
	related, err := g.Related(sourceID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(related))
	for id := range related {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var updates []types.TransferUpdate
	for _, id := range ids {
		w := related[id]
		before, tracked := masteries[id]
		if !tracked {
			// Nothing to nudge until the learner has touched the concept.
			continue
		}
		delta := (newMastery - 0.5) * w * propagationCoeff
		after := math.Max(epsilon, math.Min(1-epsilon, before+delta))
		if after == before {
			continue
		}
		updates = append(updates, types.TransferUpdate{ConceptID: id, Before: before, After: after})
		if e.audit != nil {
			e.audit.RecordPropagation(learnerID, sourceID, id, after-before)
		}
	}
	return updates, nil
}

// embed builds the 5-dimensional concept embedding:
// [normalized difficulty, prereq count, enables count, related count,
// subject tag position].
func embed(g *graph.Graph, c *graph.Concept) [5]float64 {
	// Degree normalization assumes few concepts exceed 8 edges of a kind.
	norm := func(n int) float64 { return math.Min(1, float64(n)/8.0) }

	subj := 0.0
	if n := g.SubjectCount(); n > 1 {
		subj = float64(g.SubjectIndex(c.Subject)) / float64(n-1)
	}

	return [5]float64{
		c.NormalizedDifficulty(),
		norm(len(c.Prerequisites)),
		norm(len(c.Enables)),
		norm(len(c.Related)),
		subj,
	}
}

func cosine(a, b [5]float64) float64 {
	var dot, na, nb float64
	for i := 0; i < 5; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
