package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/agentgw/internal/events"
)

const maxEventLog = 50

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme, innerWidth-4))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme, width int) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.DispatchSpawned:
		typeStyle = theme.StatusRunning
	case events.DispatchFailed:
		typeStyle = theme.StatusFailed
	case events.ProcessExited:
		typeStyle = theme.StatusOK
	case events.ProcessOutput:
		typeStyle = theme.Dim
	default:
		typeStyle = theme.Highlight
	}

	line := fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-18s", e.Type)), eventDesc(e))
	if width > 0 && lipgloss.Width(line) > width {
		line = truncate(line, width)
	}
	return line
}

// eventDesc is a one-line summary of an event payload.
func eventDesc(e events.Event) string {
	if e.Type == events.ProcessOutput {
		var out events.Output
		if err := json.Unmarshal(e.Data, &out); err == nil {
			return fmt.Sprintf("[%s] %s", shortID(out.ProcessID), outputSummary(out.Line))
		}
	}

	var d events.Dispatch
	if err := json.Unmarshal(e.Data, &d); err != nil || d.ProfileID == "" {
		return truncate(string(e.Data), 60)
	}
	parts := []string{fmt.Sprintf("[%s]", shortID(d.ProcessID)), d.ProfileID}
	if d.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", d.PID))
	}
	if d.ExitCode != nil {
		parts = append(parts, fmt.Sprintf("exit=%d", *d.ExitCode))
	}
	if d.Error != "" {
		parts = append(parts, truncate(d.Error, 60))
	}
	return strings.Join(parts, " ")
}

// outputSummary shows the "type" of a JSON agent line, or the text itself.
func outputSummary(line json.RawMessage) string {
	var s string
	if err := json.Unmarshal(line, &s); err == nil {
		return truncate(s, 60)
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &obj); err == nil && obj.Type != "" {
		return obj.Type
	}
	return truncate(string(line), 60)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
