package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"knowtrace/internal/engine"
	"knowtrace/internal/sim"
	"knowtrace/internal/types"
)

var (
	tuiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	tuiFootStyle  = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	tuiTableStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

type simResultMsg types.UpdateResult

// simClosedMsg arrives once the dispatcher has drained every queue.
type simClosedMsg struct{}

type simRow struct {
	persona       sim.Persona
	events        int
	correct       int
	interventions int
	state         types.LearnerState
}

// simModel is the live simulate dashboard. Events flow through the engine's
// dispatcher in the background; each result updates one table row.
type simModel struct {
	dispatcher *engine.Dispatcher
	table      table.Model
	order      []string
	rows       map[string]*simRow
	perLearner int
	done       int
	total      int
	failed     int
	finished   bool
}

func newSimModel(e *engine.Engine, gen *sim.Generator, specs []sim.Spec) (*simModel, error) {
	streams := make([][]types.InteractionEvent, len(specs))
	total := 0
	for i, spec := range specs {
		events, err := gen.Events(spec)
		if err != nil {
			return nil, err
		}
		streams[i] = events
		total += len(events)
	}

	m := &simModel{
		dispatcher: engine.NewDispatcher(e, cfg.Engine.Workers, cfg.Engine.QueueSize, logger),
		rows:       map[string]*simRow{},
		perLearner: simEvents,
		total:      total,
	}
	for _, spec := range specs {
		m.order = append(m.order, spec.LearnerID)
		m.rows[spec.LearnerID] = &simRow{persona: spec.Persona, state: types.StateNew}
	}

	m.table = table.New(
		table.WithColumns([]table.Column{
			{Title: "Learner", Width: 16},
			{Title: "Persona", Width: 10},
			{Title: "Events", Width: 8},
			{Title: "Accuracy", Width: 9},
			{Title: "State", Width: 12},
			{Title: "Interv", Width: 7},
		}),
		table.WithHeight(len(specs)+1),
	)
	m.refreshRows()

	// Interleave learners so every row moves while the run is live.
	go func() {
		ctx := context.Background()
		for i := 0; ; i++ {
			sent := false
			for _, stream := range streams {
				if i < len(stream) {
					if err := m.dispatcher.Submit(ctx, stream[i]); err != nil {
						m.dispatcher.Stop()
						return
					}
					sent = true
				}
			}
			if !sent {
				break
			}
		}
		m.dispatcher.Stop()
	}()

	return m, nil
}

func (m *simModel) Init() tea.Cmd {
	return m.waitForResult()
}

func (m *simModel) waitForResult() tea.Cmd {
	return func() tea.Msg {
		res, ok := <-m.dispatcher.Results()
		if !ok {
			return simClosedMsg{}
		}
		return simResultMsg(res)
	}
}

func (m *simModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case simResultMsg:
		m.done++
		if row, ok := m.rows[msg.LearnerID]; ok {
			row.events++
			if msg.Correct {
				row.correct++
			}
			if msg.Intervention != nil {
				row.interventions++
			}
			row.state = msg.State
		}
		if !msg.Success {
			m.failed++
		}
		m.refreshRows()
		return m, m.waitForResult()

	case simClosedMsg:
		m.finished = true
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *simModel) refreshRows() {
	rows := make([]table.Row, 0, len(m.order))
	for _, id := range m.order {
		r := m.rows[id]
		accuracy := "-"
		if r.events > 0 {
			accuracy = fmt.Sprintf("%.0f%%", 100*float64(r.correct)/float64(r.events))
		}
		rows = append(rows, table.Row{
			id,
			string(r.persona),
			fmt.Sprintf("%d/%d", r.events, m.perLearner),
			accuracy,
			string(r.state),
			fmt.Sprintf("%d", r.interventions),
		})
	}
	m.table.SetRows(rows)
}

func (m *simModel) View() string {
	var footer string
	switch {
	case m.finished && m.failed > 0:
		footer = fmt.Sprintf("done, %d updates failed - press q to quit", m.failed)
	case m.finished:
		footer = "done - press q to quit"
	default:
		footer = fmt.Sprintf("%d/%d updates", m.done, m.total)
	}
	return tuiTitleStyle.Render("knowtrace simulation") + "\n" +
		tuiTableStyle.Render(m.table.View()) + "\n" +
		tuiFootStyle.Render(footer) + "\n"
}
