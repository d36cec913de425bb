package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

const maxTopK = 10

// Asker is the TUI-facing subset of the session service.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string, settings domain.AskSettings) (*domain.Reply, error)
	Clear(sessionID string) error
}

// Settings are passed through to every question unchanged. ShowSources only
// affects rendering.
type Settings struct {
	TopK        int
	ShowSources bool
	Sources     []string
}

type entry struct {
	role      domain.Role
	text      string
	citations []string
	hint      string
}

type replyMsg struct {
	reply *domain.Reply
}

type errMsg struct {
	err error
}

type Model struct {
	ctx       context.Context
	asker     Asker
	sessionID string
	settings  Settings

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	transcript []entry
	busy       bool
	status     string
	ready      bool
}

func New(ctx context.Context, asker Asker, sessionID string, settings Settings) Model {
	if settings.TopK <= 0 {
		settings.TopK = 5
	}
	if settings.TopK > maxTopK {
		settings.TopK = maxTopK
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your PDFs and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		asker:     asker,
		sessionID: sessionID,
		settings:  settings,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		status:    "ctrl+s sources  ctrl+k top-k  ctrl+l clear  esc quit",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frame := historyBoxStyle.GetFrameSize()
		_, inputFrame := inputBoxStyle.GetFrameSize()
		height := msg.Height - 3 - inputFrame - frame
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, height)
		m.refresh()
		return m, nil

	case replyMsg:
		m.busy = false
		m.transcript = append(m.transcript, entry{
			role:      domain.RoleAssistant,
			text:      msg.reply.Answer,
			citations: msg.reply.Citations,
			hint:      msg.reply.Hint,
		})
		m.status = ""
		m.refresh()
		return m, nil

	case errMsg:
		m.busy = false
		// The failed question was not recorded by the session.
		if n := len(m.transcript); n > 0 && m.transcript[n-1].role == domain.RoleUser {
			m.transcript = m.transcript[:n-1]
		}
		m.status = "Error: " + msg.err.Error()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+s":
			m.settings.ShowSources = !m.settings.ShowSources
			m.refresh()
			return m, nil
		case "ctrl+k":
			m.settings.TopK = m.settings.TopK%maxTopK + 1
			return m, nil
		case "ctrl+l":
			if m.busy {
				return m, nil
			}
			if err := m.asker.Clear(m.sessionID); err != nil {
				m.status = "Error: " + err.Error()
				return m, nil
			}
			m.transcript = nil
			m.status = "Chat cleared."
			m.refresh()
			return m, nil
		case "enter":
			if m.busy {
				return m, nil
			}
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				m.status = domain.EmptyQuestionMessage
				return m, nil
			}
			m.input.SetValue("")
			m.transcript = append(m.transcript, entry{role: domain.RoleUser, text: question})
			m.busy = true
			m.status = ""
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(question))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	settings := domain.AskSettings{
		TopK:    m.settings.TopK,
		Sources: m.settings.Sources,
	}
	return func() tea.Msg {
		reply, err := m.asker.Ask(m.ctx, m.sessionID, question, settings)
		if err != nil {
			return errMsg{err: err}
		}
		return replyMsg{reply: reply}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("PDF Assistant") + "  " + m.settingsLine()
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " Thinking..."
	}
	return header + "\n" +
		historyBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) settingsLine() string {
	sources := "off"
	if m.settings.ShowSources {
		sources = "on"
	}
	filter := "all PDFs"
	if len(m.settings.Sources) > 0 {
		filter = strings.Join(m.settings.Sources, ", ")
	}
	return mutedStyle.Render(fmt.Sprintf("top-k %d | sources %s | %s", m.settings.TopK, sources, filter))
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for i, e := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if e.role == domain.RoleUser {
			b.WriteString(userStyle.Render("You: ") + e.text)
			continue
		}
		b.WriteString(assistantStyle.Render("Assistant: ") + e.text)
		if m.settings.ShowSources && len(e.citations) > 0 {
			b.WriteString("\n" + mutedStyle.Render("Sources:"))
			for _, citation := range e.citations {
				b.WriteString("\n" + mutedStyle.Render("  - "+citation))
			}
		}
		if e.hint != "" {
			b.WriteString("\n" + warnStyle.Render(e.hint))
		}
	}
	return b.String()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
