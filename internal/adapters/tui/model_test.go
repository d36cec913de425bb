package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

type askerFake struct {
	reply    *domain.Reply
	err      error
	asked    []string
	settings []domain.AskSettings
	cleared  int
}

func (f *askerFake) Ask(_ context.Context, _ string, question string, settings domain.AskSettings) (*domain.Reply, error) {
	f.asked = append(f.asked, question)
	f.settings = append(f.settings, settings)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *askerFake) Clear(string) error {
	f.cleared++
	return nil
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return out, cmd
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func TestCtrlKCyclesTopKWithinBounds(t *testing.T) {
	m := sized(t, New(context.Background(), &askerFake{}, "s", Settings{TopK: 9}))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlK})
	if m.settings.TopK != 10 {
		t.Fatalf("expected 10, got %d", m.settings.TopK)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlK})
	if m.settings.TopK != 1 {
		t.Fatalf("expected wrap to 1, got %d", m.settings.TopK)
	}
}

func TestNewClampsTopK(t *testing.T) {
	if got := New(context.Background(), &askerFake{}, "s", Settings{}).settings.TopK; got != 5 {
		t.Fatalf("expected default 5, got %d", got)
	}
	if got := New(context.Background(), &askerFake{}, "s", Settings{TopK: 50}).settings.TopK; got != maxTopK {
		t.Fatalf("expected clamp to %d, got %d", maxTopK, got)
	}
}

func TestAskPassesSettingsAndRendersCitationsWhenEnabled(t *testing.T) {
	asker := &askerFake{reply: &domain.Reply{
		Answer:    "Keys rotate monthly.",
		Citations: []string{"ops.pdf - page 2 - chunk#4"},
	}}
	m := sized(t, New(context.Background(), asker, "s", Settings{TopK: 3, Sources: []string{"ops.pdf"}}))

	m.input.SetValue("How often do keys rotate?")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.busy || cmd == nil {
		t.Fatalf("expected busy model with pending command")
	}

	msg := m.ask("How often do keys rotate?")()
	m, _ = update(t, m, msg)

	if len(asker.settings) != 1 || asker.settings[0].TopK != 3 || asker.settings[0].Sources[0] != "ops.pdf" {
		t.Fatalf("settings not passed through: %+v", asker.settings)
	}
	if m.busy {
		t.Fatalf("expected idle model after reply")
	}
	rendered := m.renderTranscript()
	if !strings.Contains(rendered, "Keys rotate monthly.") || strings.Contains(rendered, "chunk#4") {
		t.Fatalf("citations must be hidden by default:\n%s", rendered)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if !strings.Contains(m.renderTranscript(), "ops.pdf - page 2 - chunk#4") {
		t.Fatalf("citations must show after ctrl+s:\n%s", m.renderTranscript())
	}
}

func TestFilteredAbstentionShowsHint(t *testing.T) {
	asker := &askerFake{reply: &domain.Reply{
		Answer:    domain.AbstentionMessage,
		Citations: []string{},
		Abstained: true,
		Hint:      domain.FilteredOutHint,
	}}
	m := sized(t, New(context.Background(), asker, "s", Settings{Sources: []string{"a.pdf"}}))
	m, _ = update(t, m, m.ask("anything")())

	if !strings.Contains(m.renderTranscript(), domain.FilteredOutHint) {
		t.Fatalf("expected filter hint in transcript")
	}
}

func TestEmptyQuestionDoesNotAsk(t *testing.T) {
	asker := &askerFake{}
	m := sized(t, New(context.Background(), asker, "s", Settings{}))

	m.input.SetValue("   ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.busy || len(m.transcript) != 0 {
		t.Fatalf("empty question must not be sent")
	}
	if m.status != domain.EmptyQuestionMessage {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestAskErrorDropsPendingQuestion(t *testing.T) {
	asker := &askerFake{err: errors.New("ollama unavailable")}
	m := sized(t, New(context.Background(), asker, "s", Settings{}))

	m.input.SetValue("What is X?")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, m.ask("What is X?")())

	if len(m.transcript) != 0 {
		t.Fatalf("failed question must not stay in transcript: %+v", m.transcript)
	}
	if !strings.Contains(m.status, "ollama unavailable") {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestCtrlLClearsSession(t *testing.T) {
	asker := &askerFake{reply: &domain.Reply{Answer: "ok"}}
	m := sized(t, New(context.Background(), asker, "s", Settings{}))
	m, _ = update(t, m, m.ask("q")())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if asker.cleared != 1 || len(m.transcript) != 0 {
		t.Fatalf("expected cleared session, cleared=%d transcript=%d", asker.cleared, len(m.transcript))
	}
}
