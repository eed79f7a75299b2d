// Package sim generates deterministic learner behavior for exercising the
// engine from tests and the CLI. Each persona maps practice progress and
// question difficulty to correctness odds, response times, and behavioral
// context; a fixed seed always yields the same event stream.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"knowtrace/internal/engine"
	"knowtrace/internal/types"
)

// Persona names a behavioral archetype.
type Persona string

const (
	PersonaSteady    Persona = "steady"
	PersonaStruggler Persona = "struggler"
	PersonaSprinter  Persona = "sprinter"
	PersonaFatigued  Persona = "fatigued"
)

// Personas lists every archetype, for CLI flag validation.
func Personas() []Persona {
	return []Persona{PersonaSteady, PersonaStruggler, PersonaSprinter, PersonaFatigued}
}

// profile holds the tunables behind one persona.
type profile struct {
	baseAccuracy float64 // odds of a correct answer before practice effects
	growth       float64 // accuracy gained over the first ten attempts
	baseTimeMs   int64
	timeJitterMs int64
	stressHint   float64
	timePressure float64
	hintOdds     float64 // chance a question is answered with a hint
	retryOdds    float64 // chance of needing a second attempt
	fatigueRamp  float64 // fatigue added per event
}

var profiles = map[Persona]profile{
	PersonaSteady:    {baseAccuracy: 0.72, growth: 0.15, baseTimeMs: 3200, timeJitterMs: 900, stressHint: 0.15, timePressure: 1.0, hintOdds: 0.05, retryOdds: 0.05},
	PersonaStruggler: {baseAccuracy: 0.32, growth: 0.20, baseTimeMs: 6500, timeJitterMs: 2500, stressHint: 0.55, timePressure: 1.1, hintOdds: 0.30, retryOdds: 0.25},
	PersonaSprinter:  {baseAccuracy: 0.85, growth: 0.10, baseTimeMs: 1400, timeJitterMs: 500, stressHint: 0.25, timePressure: 1.35, hintOdds: 0.02, retryOdds: 0.03},
	PersonaFatigued:  {baseAccuracy: 0.65, growth: 0.10, baseTimeMs: 3800, timeJitterMs: 1200, stressHint: 0.30, timePressure: 1.0, hintOdds: 0.10, retryOdds: 0.10, fatigueRamp: 0.07},
}

// Spec describes one simulated learner.
type Spec struct {
	LearnerID string
	Persona   Persona
	Concepts  []string
	Events    int
}

// Outcome collects one learner's update results in event order.
type Outcome struct {
	LearnerID string
	Persona   Persona
	Results   []types.UpdateResult
}

// Generator produces event streams. Streams for the same learner id and seed
// are identical regardless of how many learners share the generator.
type Generator struct {
	seed  int64
	start time.Time
	step  time.Duration
}

// NewGenerator seeds a generator whose events begin at start, spaced 90s
// apart.
func NewGenerator(seed int64, start time.Time) *Generator {
	return &Generator{seed: seed, start: start, step: 90 * time.Second}
}

// Events builds the full event stream for one learner.
func (g *Generator) Events(spec Spec) ([]types.InteractionEvent, error) {
	p, ok := profiles[spec.Persona]
	if !ok {
		return nil, fmt.Errorf("sim: unknown persona %q: %w", spec.Persona, types.ErrValidation)
	}
	if spec.LearnerID == "" || len(spec.Concepts) == 0 || spec.Events <= 0 {
		return nil, fmt.Errorf("sim: spec for %q needs a learner, concepts, and events: %w", spec.LearnerID, types.ErrValidation)
	}

	rng := rand.New(rand.NewSource(g.seed ^ int64(learnerHash(spec.LearnerID))))
	events := make([]types.InteractionEvent, 0, spec.Events)
	for i := 0; i < spec.Events; i++ {
		concept := spec.Concepts[i%len(spec.Concepts)]
		difficulty := 0.2 + 0.6*rng.Float64()
		fatigue := math.Min(0.9, p.fatigueRamp*float64(i))

		progress := math.Min(1, float64(i)/10)
		odds := p.baseAccuracy + p.growth*progress - 0.3*(difficulty-0.5) - 0.4*fatigue
		odds = math.Max(0.05, math.Min(0.98, odds))
		correct := rng.Float64() < odds

		responseMs := p.baseTimeMs + rng.Int63n(2*p.timeJitterMs+1) - p.timeJitterMs
		if !correct {
			responseMs += p.timeJitterMs / 2
		}
		attempt := 1
		if rng.Float64() < p.retryOdds {
			attempt = 2
		}

		events = append(events, types.InteractionEvent{
			LearnerID:      spec.LearnerID,
			ConceptID:      concept,
			Correct:        correct,
			Timestamp:      g.start.Add(time.Duration(i) * g.step),
			ResponseTimeMs: responseMs,
			Question: types.QuestionMeta{
				Difficulty:    difficulty,
				SolutionSteps: 1 + rng.Intn(4),
				HintUsed:      rng.Float64() < p.hintOdds,
				Attempt:       attempt,
			},
			Context: types.ContextFactors{
				TimePressure: p.timePressure,
				Fatigue:      fatigue,
				StressHint:   p.stressHint,
				Device:       types.DeviceProfile{Class: types.DeviceDesktop},
			},
		})
	}
	return events, nil
}

// Run drives every spec through the engine, one goroutine per learner, and
// returns outcomes in spec order. A failed update aborts the whole run.
func Run(ctx context.Context, eng *engine.Engine, gen *Generator, specs []Spec) ([]Outcome, error) {
	outcomes := make([]Outcome, len(specs))
	grp, ctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		grp.Go(func() error {
			events, err := gen.Events(spec)
			if err != nil {
				return err
			}
			out := Outcome{LearnerID: spec.LearnerID, Persona: spec.Persona, Results: make([]types.UpdateResult, 0, len(events))}
			for _, ev := range events {
				res, err := eng.Update(ctx, ev)
				if err != nil {
					return fmt.Errorf("sim: update %s/%s: %w", ev.LearnerID, ev.ConceptID, err)
				}
				out.Results = append(out.Results, res)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Summary condenses one outcome for display.
type Summary struct {
	LearnerID     string
	Persona       Persona
	Events        int
	Accuracy      float64
	FinalState    types.LearnerState
	Interventions int
	Masteries     map[string]float64
}

// Summarize folds an outcome into per-learner aggregates.
func Summarize(out Outcome) Summary {
	s := Summary{LearnerID: out.LearnerID, Persona: out.Persona, Events: len(out.Results), Masteries: map[string]float64{}}
	correct := 0
	for _, r := range out.Results {
		if r.Correct {
			correct++
		}
		if r.Intervention != nil {
			s.Interventions++
		}
		s.Masteries[r.ConceptID] = r.NewMastery
		s.FinalState = r.State
	}
	if s.Events > 0 {
		s.Accuracy = float64(correct) / float64(s.Events)
	}
	return s
}

// Concepts returns the summary's concept ids in sorted order.
func (s Summary) Concepts() []string {
	ids := make([]string, 0, len(s.Masteries))
	for id := range s.Masteries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func learnerHash(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}
