// Package report turns learner snapshots into markdown and renders them for
// the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"knowtrace/internal/prereq"
	"knowtrace/internal/sim"
	"knowtrace/internal/types"
)

// Profile bundles everything one learner report needs.
type Profile struct {
	Snapshot  types.ProfileSnapshot
	State     types.LearnerState
	Readiness []prereq.Readiness // readiness per tracked concept, optional
	Audit     int                // recorded transfer events
}

// Markdown renders the report as a markdown document.
func Markdown(p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Learner %s\n\n", p.Snapshot.LearnerID)
	fmt.Fprintf(&b, "- State: **%s**\n", p.State)
	fmt.Fprintf(&b, "- Stress tolerance: %.2f\n", p.Snapshot.StressTolerance)
	if acc, n := overallAccuracy(p.Snapshot.OverallWindow); n > 0 {
		fmt.Fprintf(&b, "- Recent accuracy: %.0f%% over %d answers\n", 100*acc, n)
	}
	if p.Audit > 0 {
		fmt.Fprintf(&b, "- Transfer events: %d\n", p.Audit)
	}
	fmt.Fprintf(&b, "- Snapshot taken: %s\n\n", p.Snapshot.TakenAt.Format(time.RFC3339))

	if len(p.Snapshot.Masteries) > 0 {
		b.WriteString("## Mastery\n\n")
		b.WriteString("| Concept | Mastery | Practice | Confidence | Last seen |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, m := range p.Snapshot.Masteries {
			last := "never"
			if !m.LastInteraction.IsZero() {
				last = m.LastInteraction.Format("2006-01-02")
			}
			fmt.Fprintf(&b, "| %s | %s %.2f | %d | %.2f | %s |\n",
				m.ConceptID, masteryBar(m.Mastery), m.Mastery, m.PracticeCount, m.Confidence, last)
		}
		b.WriteString("\n")
	}

	var blocked []prereq.Readiness
	for _, r := range p.Readiness {
		if !r.Ready && len(r.Gaps) > 0 {
			blocked = append(blocked, r)
		}
	}
	if len(blocked) > 0 {
		b.WriteString("## Prerequisite gaps\n\n")
		for _, r := range blocked {
			fmt.Fprintf(&b, "- **%s** (readiness %.2f):", r.ConceptID, r.Overall)
			for _, g := range r.Gaps {
				fmt.Fprintf(&b, " %s %.2f/%.2f", g.ConceptID, g.Current, g.Required)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SimulationMarkdown renders a run's per-learner summaries.
func SimulationMarkdown(summaries []sim.Summary) string {
	var b strings.Builder
	b.WriteString("# Simulation results\n\n")
	b.WriteString("| Learner | Persona | Events | Accuracy | State | Interventions |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %s | %s | %d | %.0f%% | %s | %d |\n",
			s.LearnerID, s.Persona, s.Events, 100*s.Accuracy, s.FinalState, s.Interventions)
	}
	b.WriteString("\n")
	for _, s := range summaries {
		if len(s.Masteries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", s.LearnerID)
		for _, id := range s.Concepts() {
			fmt.Fprintf(&b, "- %s: %s %.2f\n", id, masteryBar(s.Masteries[id]), s.Masteries[id])
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Render pretty-prints markdown for the terminal. On renderer failure the
// plain markdown comes back unchanged.
func Render(markdown string, width int) string {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// masteryBar draws a ten-cell progress bar.
func masteryBar(m float64) string {
	if m < 0 {
		m = 0
	}
	if m > 1 {
		m = 1
	}
	filled := int(m*10 + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func overallAccuracy(window []bool) (float64, int) {
	if len(window) == 0 {
		return 0, 0
	}
	correct := 0
	for _, c := range window {
		if c {
			correct++
		}
	}
	return float64(correct) / float64(len(window)), len(window)
}
