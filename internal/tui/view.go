package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tessera/internal/events"
)

func renderHeader(m Model, width int) string {
	innerWidth := width - 4
	theme := m.theme

	conn := theme.StatusOK.Render("connected")
	if !m.connected {
		conn = theme.StatusFailed.Render("connecting")
	}

	state := m.status.State.String()
	stateText := theme.stateStyle(state).Render(strings.ToUpper(state))
	if m.status.AtBreak {
		stateText += " " + theme.Highlight.Render("AT BREAK")
	}

	runID := m.status.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID == "" {
		runID = "-"
	}

	lastEvent := "never"
	if at := m.spinner.LastEvent(); !at.IsZero() {
		lastEvent = time.Since(at).Round(time.Second).String() + " ago"
	}

	title := " TESSERA MONITOR"
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	pad := max(1, innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4)

	lines := []string{
		title + strings.Repeat(" ", pad) + clock + " ",
		fmt.Sprintf(" %s  run %s  %s  code %d  cycle %dms", conn, runID, stateText, m.status.Code, m.cycleMS),
		fmt.Sprintf(" executed: %s", strings.Join(m.status.Executed, " > ")),
		fmt.Sprintf(" last event: %s %s", lastEvent, m.spinner.Render(theme)),
	}
	if f := m.status.Failure; f != nil {
		lines = append(lines, theme.StatusFailed.Render(fmt.Sprintf(" failed in %s:%s: %s", f.Processor, f.Endpoint, f.Message)))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	body := theme.Dim.Render("  Waiting for events...")
	if len(eventLog) > 0 {
		lines := make([]string, 0, 10)
		for i, e := range eventLog {
			if i >= 10 {
				break
			}
			lines = append(lines, formatEvent(e, theme))
		}
		body = lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	}

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENTS"),
		body,
	))
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var style lipgloss.Style
	switch {
	case strings.HasSuffix(e.Type, ".completed"):
		style = theme.StatusOK
	case strings.HasSuffix(e.Type, ".failed"), strings.HasSuffix(e.Type, ".cancelled"):
		style = theme.StatusFailed
	case strings.HasSuffix(e.Type, ".started"):
		style = theme.StatusRunning
	case e.Type == events.BreakReached:
		style = theme.Highlight
	default:
		style = theme.Dim
	}
	return fmt.Sprintf("%s %s %s", ts, style.Render(fmt.Sprintf("%-22s", e.Type)), describeEvent(e))
}

// describeEvent pulls a one-line summary out of an event payload.
func describeEvent(e events.Event) string {
	var data map[string]any
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if id, ok := data["run_id"].(string); ok && id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "["+id+"]")
	}
	for _, key := range []string{"entry", "result", "state", "error"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
