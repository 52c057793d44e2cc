package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/agentgw/internal/events"
)

// Process states shown in the table.
const (
	stateResolved = "resolved"
	stateRunning  = "running"
	stateExited   = "exited"
	stateFailed   = "failed"
)

// ProcessState tracks one agent process discovered from events.
type ProcessState struct {
	ID        string
	ProfileID string
	PID       int
	Status    string
	ExitCode  *int
	Error     string
	Lines     int
	StartTime time.Time
	EndTime   time.Time
}

// updateProcessState folds one event into procs. Events without a process
// id are ignored.
func updateProcessState(procs map[string]*ProcessState, e events.Event) {
	if e.Type == events.ProcessOutput {
		var out events.Output
		if err := json.Unmarshal(e.Data, &out); err != nil || out.ProcessID == "" {
			return
		}
		getOrCreateProcess(procs, out.ProcessID).Lines++
		return
	}

	var d events.Dispatch
	if err := json.Unmarshal(e.Data, &d); err != nil || d.ProcessID == "" {
		return
	}
	p := getOrCreateProcess(procs, d.ProcessID)
	if d.ProfileID != "" {
		p.ProfileID = d.ProfileID
	}
	if d.PID != 0 {
		p.PID = d.PID
	}

	switch e.Type {
	case events.DispatchResolved:
		if p.Status == "" {
			p.Status = stateResolved
		}
	case events.DispatchSpawned:
		p.Status = stateRunning
		p.StartTime = e.At
	case events.DispatchFailed:
		p.Status = stateFailed
		p.Error = d.Error
		p.EndTime = e.At
	case events.ProcessExited:
		p.ExitCode = d.ExitCode
		p.Error = d.Error
		p.EndTime = e.At
		p.Status = stateExited
		if d.Error != "" {
			p.Status = stateFailed
		}
	}
}

func getOrCreateProcess(procs map[string]*ProcessState, id string) *ProcessState {
	p, ok := procs[id]
	if !ok {
		p = &ProcessState{ID: id}
		procs[id] = p
	}
	return p
}

// sortedProcesses returns running processes first, then newest first.
func sortedProcesses(procs map[string]*ProcessState) []*ProcessState {
	out := make([]*ProcessState, 0, len(procs))
	for _, p := range procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Status == stateRunning, out[j].Status == stateRunning
		if ri != rj {
			return ri
		}
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func newProcessTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Process", Width: 10},
			{Title: "Profile", Width: 20},
			{Title: "PID", Width: 8},
			{Title: "Status", Width: 10},
			{Title: "Exit", Width: 5},
			{Title: "Lines", Width: 7},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func processRows(procs []*ProcessState, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(procs))
	for _, p := range procs {
		id := p.ID
		if len(id) > 8 {
			id = id[:8]
		}
		pid := "-"
		if p.PID != 0 {
			pid = strconv.Itoa(p.PID)
		}
		exit := "-"
		if p.ExitCode != nil {
			exit = strconv.Itoa(*p.ExitCode)
		}
		rows = append(rows, table.Row{
			id,
			p.ProfileID,
			pid,
			p.Status,
			exit,
			strconv.Itoa(p.Lines),
			processDuration(p, now),
		})
	}
	return rows
}

func processDuration(p *ProcessState, now time.Time) string {
	if p.StartTime.IsZero() {
		return "-"
	}
	end := p.EndTime
	if end.IsZero() {
		end = now
	}
	return formatDuration(end.Sub(p.StartTime))
}

func renderProcesses(t table.Model, count int, theme Theme, width int) string {
	innerWidth := width - 4
	title := theme.Title.Render(fmt.Sprintf("PROCESSES (%d)", count))

	if count == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			theme.Dim.Render("  No agents dispatched yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, title, t.View()))
}
