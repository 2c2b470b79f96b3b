package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// EventMsg carries one lifecycle event into the program.
type EventMsg struct {
	Event models.Event
}

// StreamClosedMsg is sent when the event source is exhausted.
type StreamClosedMsg struct{}

// Sender is the part of *tea.Program used by Forward.
type Sender interface {
	Send(msg tea.Msg)
}

// Forward relays events to the program until the channel closes.
func Forward(p Sender, events <-chan models.Event) {
	for ev := range events {
		p.Send(EventMsg{Event: ev})
	}
	p.Send(StreamClosedMsg{})
}

// AppOption configures an App.
type AppOption func(*App)

// WithSubmit enables the input field; fn receives each submitted request.
func WithSubmit(fn func(text string)) AppOption {
	return func(a *App) { a.onSubmit = fn }
}

// WithTitle sets the header text.
func WithTitle(title string) AppOption {
	return func(a *App) { a.title = title }
}

// App is the root model. Without a submit callback it is read-only.
type App struct {
	sessions *SessionsPanel
	input    *InputField
	onSubmit func(text string)
	title    string
	status   string
	width    int
	quitting bool

	headerStyle lipgloss.Style
	footerStyle lipgloss.Style
}

// NewApp creates an App.
func NewApp(opts ...AppOption) *App {
	a := &App{
		sessions: NewSessionsPanel(),
		title:    "nexus",
		width:    80,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1),

		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.onSubmit != nil {
		a.input = NewInputField()
	}
	return a
}

// Sessions returns the sessions panel.
func (a *App) Sessions() *SessionsPanel { return a.sessions }

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	if a.input != nil {
		return a.input.Focus()
	}
	return nil
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			a.quitting = true
			return a, tea.Quit
		case "q":
			if a.input == nil {
				a.quitting = true
				return a, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.sessions.SetWidth(msg.Width)
		if a.input != nil {
			a.input.SetWidth(msg.Width)
		}
		return a, nil

	case EventMsg:
		a.sessions.Apply(msg.Event)
		return a, nil

	case StreamClosedMsg:
		a.status = "event stream closed"
		return a, nil

	case RequestSubmittedMsg:
		a.status = "submitted: " + truncate(msg.Text, a.width-14)
		if a.onSubmit != nil {
			a.onSubmit(msg.Text)
		}
		return a, nil
	}

	if a.input != nil {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	parts := []string{a.headerStyle.Render(a.title), a.sessions.View()}
	if a.input != nil {
		parts = append(parts, a.input.View())
	}

	help := "q quit"
	if a.input != nil {
		help = "enter submit • esc quit"
	}
	if a.status != "" {
		help = a.status + " • " + help
	}
	parts = append(parts, a.footerStyle.Render(help))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
