package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks gateway health from /healthz polling.
type HealthState struct {
	Status          string
	UptimeSeconds   int64
	ProfilesLoaded  int
	ProfilesError   string
	ActiveProcesses int
	Connected       bool
	LastCheck       time.Time
}

func renderHeader(health HealthState, pulse Pulse, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	lastOutput := "never"
	if !pulse.Last().IsZero() {
		lastOutput = formatDuration(now.Sub(pulse.Last())) + " ago"
	}

	title := " AGENTGW WATCH"
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  Profiles: %d  Active: %d",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.ProfilesLoaded,
		health.ActiveProcesses,
	)
	lines := []string{titleLine, statsLine}
	if health.ProfilesError != "" {
		lines = append(lines, theme.StatusFailed.Render(" profiles: "+truncate(health.ProfilesError, innerWidth-14)))
	}
	lines = append(lines, fmt.Sprintf(" Last output: %s %s", lastOutput, pulse.Render(theme)))

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
