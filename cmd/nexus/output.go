package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/nexus/pkg/models"
)

const (
	colorOK   = color.FgGreen
	colorWarn = color.FgYellow
	colorFail = color.FgRed
	colorInfo = color.FgCyan
)

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// printEvent prints one lifecycle event as a colored line.
func printEvent(ev models.Event) {
	ts := ev.Timestamp.Local().Format("15:04:05")
	short := shortID(ev.SessionID)

	switch ev.Kind {
	case models.EventSessionStarted:
		printStatus("▶", fmt.Sprintf("%s session %s started (%v tasks)", ts, short, ev.Payload["totalTasks"]), colorInfo)
	case models.EventSessionCompleted:
		printStatus("✓", fmt.Sprintf("%s session %s completed", ts, short), colorOK)
	case models.EventSessionFailed:
		printStatus("✗", fmt.Sprintf("%s session %s failed", ts, short), colorFail)
	case models.EventTaskStarted:
		printStatus("·", fmt.Sprintf("%s %s/%s started on %v", ts, short, ev.TaskID, ev.Payload["workerType"]), colorInfo)
	case models.EventTaskCompleted:
		printStatus("✓", fmt.Sprintf("%s %s/%s completed", ts, short, ev.TaskID), colorOK)
	case models.EventTaskFailed:
		printStatus("✗", fmt.Sprintf("%s %s/%s failed: %v", ts, short, ev.TaskID, ev.Payload["error"]), colorFail)
	case models.EventTaskCancelled:
		printStatus("⊘", fmt.Sprintf("%s %s/%s cancelled", ts, short, ev.TaskID), colorWarn)
	default:
		fmt.Printf("%s %s %s\n", ts, ev.Kind, short)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
)

var statusStyles = map[string]lipgloss.Style{
	string(models.SessionRunning):    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	string(models.SessionCompleted):  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
	string(models.SessionFailed):     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	string(models.TaskStatusPending): lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
}

func styleStatus(s string) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(s)
	}
	return s
}

// renderSession draws a session record as a bordered panel.
func renderSession(s *models.SessionState) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Session " + s.SessionID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Status: "), styleStatus(string(s.Status)))
	if s.Intent != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Intent: "), s.Intent)
	}
	fmt.Fprintf(&b, "%s %d/%d completed\n", labelStyle.Render("Tasks:  "), s.Metrics.CompletedTasks, s.Metrics.TotalTasks)
	fmt.Fprintf(&b, "%s %s ago\n", labelStyle.Render("Created:"), formatDuration(time.Since(s.CreatedAt)))

	ids := make([]string, 0, len(s.Tasks))
	for id := range s.Tasks {
		ids = append(ids, id)
	}
	if s.Plan != nil {
		ids = ids[:0]
		for _, step := range s.Plan.Steps {
			ids = append(ids, step.ID)
		}
	} else {
		sort.Strings(ids)
	}

	for _, id := range ids {
		ts, ok := s.Tasks[id]
		if !ok {
			ts = models.TaskState{Status: models.TaskStatusPending}
		}
		line := fmt.Sprintf("\n  %-12s %-10s %s", id, styleStatus(string(ts.Status)), ts.AgentType)
		if ts.StartedAt != nil && ts.CompletedAt != nil {
			line += labelStyle.Render(" " + ts.CompletedAt.Sub(*ts.StartedAt).Round(time.Millisecond).String())
		}
		if ts.Error != "" {
			line += "\n    " + statusStyles[string(models.SessionFailed)].Render(ts.Error)
		}
		b.WriteString(line)
	}

	return panelStyle.Render(b.String())
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
