// Package tui is the interactive chat interface over the question-answering
// service.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragbot/internal/service"
)

// QAPort is the TUI-facing subset of the query service.
type QAPort interface {
	Answer(ctx context.Context, req service.Request) service.Response
}

type turn struct {
	question string
	answer   string
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	service    QAPort
	files      []string
	state      *service.State
	persistent bool

	input      textinput.Model
	viewport   viewport.Model
	transcript []turn
	summary    string
	status     string
	ready      bool
	waiting    bool
	lastQuery  string
}

// New creates a new chat model over the given documents. summary is shown in
// the header once, as an overview of the ingested corpus.
func New(svc QAPort, files []string, summary string, persistent bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:    svc,
		files:      files,
		state:      &service.State{},
		persistent: persistent,
		input:      ti,
		viewport:   vp,
		summary:    summary,
		status:     "Documents loaded. Ask away.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

type answerMsg struct {
	resp service.Response
}

func (m Model) ask(query string) tea.Cmd {
	req := service.Request{
		Files:            m.files,
		Query:            query,
		State:            m.state,
		PersistentMemory: m.persistent,
	}
	return func() tea.Msg {
		return answerMsg{resp: m.service.Answer(context.Background(), req)}
	}
}

// Update handles key, window and answer events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and query boxes
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case answerMsg:
		m.waiting = false
		m.transcript = append(m.transcript, turn{question: msg.resp.Query, answer: msg.resp.Answer})
		m.status = fmt.Sprintf("Answered %q", msg.resp.Query)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.waiting = true
				m.lastQuery = q
				m.status = "Thinking..."
				m.input.Reset()
				return m, m.ask(q)
			}
		case "ctrl+r":
			if m.lastQuery != "" && !m.waiting {
				m.waiting = true
				m.status = fmt.Sprintf("Retrying %q...", m.lastQuery)
				return m, m.ask(m.lastQuery)
			}
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and the conversation so far.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "Document Q&A"
	if m.persistent {
		title += " (persistent memory)"
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return "No questions yet. Enter sends, ctrl+r retries the last question, ctrl+c quits."
	}
	var b strings.Builder
	for i, t := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + t.question))
		b.WriteString("\n")
		b.WriteString(t.answer)
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
