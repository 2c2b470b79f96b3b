package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// maxSessions bounds how many sessions the panel keeps.
const maxSessions = 20

// taskRow is the panel's view of one task.
type taskRow struct {
	id         string
	workerType string
	status     models.TaskStatus
	cancelled  bool
	errText    string
	durationMs int64
}

// sessionView is the panel's view of one session.
type sessionView struct {
	id     string
	intent string
	total  int
	status models.SessionStatus
	errMsg string
	tasks  []*taskRow
	byID   map[string]*taskRow
}

func (s *sessionView) task(id string) *taskRow {
	if row, ok := s.byID[id]; ok {
		return row
	}
	row := &taskRow{id: id, status: models.TaskStatusPending}
	s.byID[id] = row
	s.tasks = append(s.tasks, row)
	return row
}

func (s *sessionView) completed() int {
	n := 0
	for _, t := range s.tasks {
		if t.status == models.TaskStatusCompleted {
			n++
		}
	}
	return n
}

// SessionsPanel lists sessions, newest first, with their tasks in the order
// they were first seen.
type SessionsPanel struct {
	sessions []*sessionView
	byID     map[string]*sessionView
	width    int

	titleStyle   lipgloss.Style
	borderStyle  lipgloss.Style
	sessionStyle lipgloss.Style
	pendingStyle lipgloss.Style
	runningStyle lipgloss.Style
	doneStyle    lipgloss.Style
	failedStyle  lipgloss.Style
	mutedStyle   lipgloss.Style
}

// NewSessionsPanel creates an empty panel.
func NewSessionsPanel() *SessionsPanel {
	return &SessionsPanel{
		byID:  make(map[string]*sessionView),
		width: 80,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),

		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),

		sessionStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75")),

		pendingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray

		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")), // Dark green

		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		mutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
	}
}

// SetWidth updates the panel width.
func (p *SessionsPanel) SetWidth(width int) {
	p.width = width
}

// Len returns the number of tracked sessions.
func (p *SessionsPanel) Len() int {
	return len(p.sessions)
}

func (p *SessionsPanel) session(id string) *sessionView {
	if s, ok := p.byID[id]; ok {
		return s
	}
	s := &sessionView{id: id, status: models.SessionRunning, byID: make(map[string]*taskRow)}
	p.byID[id] = s
	p.sessions = append([]*sessionView{s}, p.sessions...)
	if len(p.sessions) > maxSessions {
		dropped := p.sessions[len(p.sessions)-1]
		p.sessions = p.sessions[:len(p.sessions)-1]
		delete(p.byID, dropped.id)
	}
	return s
}

// Apply folds an event into the panel.
func (p *SessionsPanel) Apply(ev models.Event) {
	if ev.SessionID == "" {
		return
	}
	s := p.session(ev.SessionID)

	switch ev.Kind {
	case models.EventSessionStarted:
		s.status = models.SessionRunning
		if intent, ok := ev.Payload["intent"].(string); ok {
			s.intent = intent
		}
		s.total = payloadInt(ev.Payload, "totalTasks")
	case models.EventSessionCompleted:
		s.status = models.SessionCompleted
		s.errMsg, _ = ev.Payload["error"].(string)
	case models.EventSessionFailed:
		s.status = models.SessionFailed
		s.errMsg, _ = ev.Payload["error"].(string)
	case models.EventTaskStarted:
		row := s.task(ev.TaskID)
		row.status = models.TaskStatusRunning
		if wt, ok := ev.Payload["workerType"].(string); ok {
			row.workerType = wt
		}
	case models.EventTaskCompleted:
		row := s.task(ev.TaskID)
		row.status = models.TaskStatusCompleted
		row.durationMs = int64(payloadInt(ev.Payload, "durationMs"))
	case models.EventTaskFailed:
		row := s.task(ev.TaskID)
		row.status = models.TaskStatusFailed
		row.errText, _ = ev.Payload["error"].(string)
		row.durationMs = int64(payloadInt(ev.Payload, "durationMs"))
	case models.EventTaskCancelled:
		row := s.task(ev.TaskID)
		row.status = models.TaskStatusFailed
		row.cancelled = true
	}
}

// payloadInt reads a number that may have crossed a JSON boundary.
func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// View renders the panel.
func (p *SessionsPanel) View() string {
	var b strings.Builder
	b.WriteString(p.titleStyle.Render("Sessions"))
	b.WriteString("\n")

	if len(p.sessions) == 0 {
		b.WriteString(p.mutedStyle.Render("  Waiting for events..."))
		return p.borderStyle.Width(p.width - 2).Render(b.String())
	}

	for i, s := range p.sessions {
		if i > 0 {
			b.WriteString("\n")
		}
		header := fmt.Sprintf("%s %s", p.sessionIcon(s.status), s.id)
		if s.intent != "" {
			header += " [" + s.intent + "]"
		}
		total := s.total
		if total < len(s.tasks) {
			total = len(s.tasks)
		}
		header += fmt.Sprintf("  %d/%d", s.completed(), total)
		b.WriteString(p.sessionStyle.Render(header))
		b.WriteString("\n")

		for _, t := range s.tasks {
			b.WriteString("  ")
			b.WriteString(p.taskLine(t))
			b.WriteString("\n")
		}
		if s.errMsg != "" {
			b.WriteString(p.failedStyle.Render("  error: " + truncate(s.errMsg, p.width-12)))
			b.WriteString("\n")
		}
	}

	return p.borderStyle.Width(p.width - 2).Render(strings.TrimRight(b.String(), "\n"))
}

func (p *SessionsPanel) sessionIcon(status models.SessionStatus) string {
	switch status {
	case models.SessionCompleted:
		return p.doneStyle.Render("✓")
	case models.SessionFailed:
		return p.failedStyle.Render("✗")
	default:
		return p.runningStyle.Render("●")
	}
}

func (p *SessionsPanel) taskLine(t *taskRow) string {
	var icon string
	style := p.pendingStyle
	switch t.status {
	case models.TaskStatusRunning:
		icon, style = "▶", p.runningStyle
	case models.TaskStatusCompleted:
		icon, style = "✓", p.doneStyle
	case models.TaskStatusFailed:
		icon, style = "✗", p.failedStyle
	default:
		icon = "○"
	}

	line := fmt.Sprintf("%s %s", icon, t.id)
	if t.workerType != "" {
		line += " (" + t.workerType + ")"
	}
	if t.durationMs > 0 {
		line += fmt.Sprintf(" %dms", t.durationMs)
	}
	switch {
	case t.cancelled:
		line += " cancelled"
	case t.errText != "":
		line += " " + truncate(t.errText, p.width-len(line)-8)
	}
	return style.Render(line)
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
