package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/nexus/pkg/models"
)

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func TestForward(t *testing.T) {
	events := make(chan models.Event, 2)
	events <- models.Event{Kind: models.EventSessionStarted, SessionID: "s1"}
	events <- models.Event{Kind: models.EventSessionCompleted, SessionID: "s1"}
	close(events)

	sender := &recordingSender{}
	Forward(sender, events)

	if len(sender.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(sender.msgs))
	}
	if _, ok := sender.msgs[2].(StreamClosedMsg); !ok {
		t.Errorf("expected StreamClosedMsg last, got %T", sender.msgs[2])
	}
}

func TestApp_ReadOnly(t *testing.T) {
	app := NewApp(WithTitle("nexus watch"))

	if app.Init() != nil {
		t.Error("read-only app should not start with a command")
	}

	app.Update(EventMsg{Event: models.Event{Kind: models.EventSessionStarted, SessionID: "s1"}})
	if app.Sessions().Len() != 1 {
		t.Errorf("expected 1 session, got %d", app.Sessions().Len())
	}

	view := app.View()
	if !strings.Contains(view, "nexus watch") || !strings.Contains(view, "q quit") {
		t.Errorf("unexpected view:\n%s", view)
	}

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if app.View() != "" {
		t.Error("expected empty view after quitting")
	}
}

func TestApp_Interactive(t *testing.T) {
	var submitted []string
	app := NewApp(WithSubmit(func(text string) { submitted = append(submitted, text) }))

	if app.Init() == nil {
		t.Error("interactive app should focus the input")
	}

	// 'q' is text, not quit, when there is an input field.
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if app.quitting {
		t.Fatal("q must not quit the interactive app")
	}
	if app.input.Value() != "q" {
		t.Errorf("expected q typed into the input, got %q", app.input.Value())
	}

	app.Update(RequestSubmittedMsg{Text: "summarize the report"})
	if len(submitted) != 1 || submitted[0] != "summarize the report" {
		t.Errorf("unexpected submissions %v", submitted)
	}
	if !strings.Contains(app.View(), "submitted: summarize the report") {
		t.Error("expected submission in footer")
	}
}

func TestApp_WindowSize(t *testing.T) {
	app := NewApp(WithSubmit(func(string) {}))
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	if app.width != 100 || app.sessions.width != 100 || app.input.width != 100 {
		t.Errorf("width not propagated: app=%d sessions=%d input=%d", app.width, app.sessions.width, app.input.width)
	}
}
