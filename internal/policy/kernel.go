// Package policy derives pedagogical decisions declaratively with Mangle
// datalog. The update core asserts per-interaction facts (state band,
// consecutive errors, overload risk, stress level, recent correctness) and
// the kernel evaluates embedded rules to intervention tiers and
// recommendation tags. The kernel only labels; it never touches the mastery
// math.
package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"knowtrace/internal/types"
)

// Signals are the per-update facts asserted into the EDB. Probability-like
// values arrive as permille integers so the rules stay in int64 land.
type Signals struct {
	LearnerID         string
	ConceptID         string
	State             types.LearnerState
	ConsecutiveErrors int
	OverloadPermille  int64
	StressPermille    int64
	FatiguePermille   int64
	// LastFiveCorrect counts correct answers among the last five outcomes.
	// Negative means fewer than five outcomes exist yet.
	LastFiveCorrect int
	RecoveryActive  bool
	PrereqGapID     string
}

// Decision is the derived output.
type Decision struct {
	Tier            types.InterventionTier
	Recommendations []string
	NeedsBreak      bool
}

// pedagogyRules is the embedded IDB. Thresholds are permille: overload 700,
// high stress 750, moderate stress 550, fatigue 600.
const pedagogyRules = `
# Per-update facts asserted by the update core

Decl state(L, Band).
Decl consecutive_errors(L, N).
Decl overload_permille(L, N).
Decl stress_permille(L, N).
Decl fatigue_permille(L, N).
Decl last_five_correct(L, N).
Decl recovery_active(L).
Decl prereq_gap(L, Concept).

# Break detection: at most one correct in the last five answers

Decl needs_break(L).
needs_break(L) :- last_five_correct(L, N), N < 2.

# Intervention tiers

Decl intervention(L, Tier).
intervention(L, /high) :- consecutive_errors(L, N), N > 3.
intervention(L, /high) :- overload_permille(L, N), N > 700.
intervention(L, /moderate) :- stress_permille(L, N), N > 750.
intervention(L, /moderate) :- state(L, /struggling), needs_break(L).
intervention(L, /mild) :- stress_permille(L, N), N > 550.
intervention(L, /mild) :- state(L, /struggling).

# Recommendation tags

Decl recommend(L, Tag).
recommend(L, /reduce_difficulty) :- state(L, /struggling).
recommend(L, /reduce_difficulty) :- intervention(L, /high).
recommend(L, /take_break) :- needs_break(L).
recommend(L, /take_break) :- fatigue_permille(L, N), N > 600.
recommend(L, /calming_pace) :- stress_permille(L, N), N > 750.
recommend(L, /review_prerequisites) :- prereq_gap(L, _).
recommend(L, /scaffolded_practice) :- recovery_active(L).
recommend(L, /advance_difficulty) :- state(L, /mastering), last_five_correct(L, N), N > 3.
recommend(L, /steady_practice) :- state(L, /learning).
recommend(L, /steady_practice) :- state(L, /progressing).
`

// Kernel evaluates the pedagogy rules over per-update facts.
type Kernel struct {
	mu    sync.Mutex
	rules parse.SourceUnit
}

// NewKernel parses and analyzes the embedded rules once, so a rule defect
// surfaces at construction rather than on some later update.
func NewKernel() (*Kernel, error) {
	unit, err := parse.Unit(strings.NewReader(pedagogyRules))
	if err != nil {
		return nil, fmt.Errorf("policy: parse rules: %w", err)
	}
	if _, err := analysis.AnalyzeOneUnit(unit, nil); err != nil {
		return nil, fmt.Errorf("policy: analyze rules: %w", err)
	}
	return &Kernel{rules: unit}, nil
}

// Evaluate asserts the signals as facts, evaluates the stratified program to
// fixpoint, and reads back the derived decision atoms.
func (k *Kernel) Evaluate(sig Signals) (Decision, error) {
	if sig.LearnerID == "" {
		return Decision{}, types.Validationf("policy: empty learner id")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	facts, err := parse.Unit(strings.NewReader(factBlock(sig)))
	if err != nil {
		return Decision{}, fmt.Errorf("policy: parse facts: %w", err)
	}
	unit := parse.SourceUnit{
		Decls:   k.rules.Decls,
		Clauses: append(append([]ast.Clause(nil), k.rules.Clauses...), facts.Clauses...),
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("policy: analyze program: %w", err)
	}
	store := factstore.NewSimpleInMemoryStore()
	if _, err := engine.EvalProgramWithStats(info, store); err != nil {
		return Decision{}, fmt.Errorf("policy: evaluate program: %w", err)
	}

	var d Decision
	d.Tier = highestTier(queryNames(info, store, "intervention"))
	d.NeedsBreak = len(queryNames(info, store, "needs_break")) > 0

	tags := queryNames(info, store, "recommend")
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimPrefix(tag, "/")
		if !seen[tag] {
			seen[tag] = true
			d.Recommendations = append(d.Recommendations, tag)
		}
	}
	sort.Strings(d.Recommendations)
	return d, nil
}

// factBlock renders the signals as EDB fact lines.
func factBlock(sig Signals) string {
	var sb strings.Builder
	fact := func(format string, args ...any) {
		fmt.Fprintf(&sb, format+"\n", args...)
	}

	fact("state(%q, /%s).", sig.LearnerID, string(sig.State))
	fact("consecutive_errors(%q, %d).", sig.LearnerID, sig.ConsecutiveErrors)
	fact("overload_permille(%q, %d).", sig.LearnerID, sig.OverloadPermille)
	fact("stress_permille(%q, %d).", sig.LearnerID, sig.StressPermille)
	fact("fatigue_permille(%q, %d).", sig.LearnerID, sig.FatiguePermille)
	if sig.LastFiveCorrect >= 0 {
		fact("last_five_correct(%q, %d).", sig.LearnerID, sig.LastFiveCorrect)
	}
	if sig.RecoveryActive {
		fact("recovery_active(%q).", sig.LearnerID)
	}
	if sig.PrereqGapID != "" {
		fact("prereq_gap(%q, %q).", sig.LearnerID, sig.PrereqGapID)
	}
	return sb.String()
}

// queryNames collects the last name-typed argument of every derived atom of
// a predicate. For unary predicates it returns one entry per derivation.
func queryNames(info *analysis.ProgramInfo, store factstore.FactStore, predicate string) []string {
	var out []string
	for pred := range info.Decls {
		if pred.Symbol != predicate {
			continue
		}
		store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
			if len(a.Args) == 0 {
				return nil
			}
			if c, ok := a.Args[len(a.Args)-1].(ast.Constant); ok {
				out = append(out, c.Symbol)
			}
			return nil
		})
		break
	}
	return out
}

func highestTier(atoms []string) types.InterventionTier {
	tier := types.TierNone
	for _, a := range atoms {
		var t types.InterventionTier
		switch a {
		case "/high":
			t = types.TierHigh
		case "/moderate":
			t = types.TierModerate
		case "/mild":
			t = types.TierMild
		}
		if t > tier {
			tier = t
		}
	}
	return tier
}
