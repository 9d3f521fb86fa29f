// Package tui is the interactive terminal client: one loaded paper, a
// question box, and the streamed answer rendered live.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// QAPort is the TUI-facing streaming capability.
type QAPort interface {
	Stream(ctx context.Context, query string, onChunk func(string)) (Stats, error)
}

// Messages carried from the streaming goroutine into the program.
type (
	streamChunkMsg string
	streamDoneMsg  struct{ stats Stats }
	streamErrMsg   struct{ err error }
)

// Model is the Bubble Tea model for an interactive QA session.
type Model struct {
	client QAPort
	input  textinput.Model
	view   viewport.Model
	spin   spinner.Model

	// events carries stream messages; one waitForEvent command is in
	// flight whenever a stream runs.
	events chan tea.Msg

	answer string
	status string
	doc    string
	busy   bool
	ready  bool
}

// New creates a TUI model. doc names the loaded document for the header.
func New(client QAPort, doc string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the paper and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	return Model{
		client: client,
		input:  ti,
		view:   vp,
		spin:   sp,
		events: make(chan tea.Msg, 64),
		doc:    doc,
		status: "Ready. Ask a question about the loaded paper.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// waitForEvent forwards the next streaming message into the program.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

// startStream runs the HTTP stream in its own command goroutine, pushing
// chunks and the terminal message through the events channel so they arrive
// in order.
func startStream(client QAPort, events chan<- tea.Msg, query string) tea.Cmd {
	return func() tea.Msg {
		stats, err := client.Stream(context.Background(), query, func(chunk string) {
			events <- streamChunkMsg(chunk)
		})
		if err != nil {
			events <- streamErrMsg{err: err}
			return nil
		}
		events <- streamDoneMsg{stats: stats}
		return nil
	}
}

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ah := answerBoxStyle.GetFrameSize()
		_, qh := questionBoxStyle.GetFrameSize()
		totalHeaderLines := 1
		totalFooterLines := 1
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.view.Width = max(20, msg.Width)
		m.view.Height = max(3, vh-ah)
		m.view.SetContent(m.answer)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.busy {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.busy = true
			m.answer = ""
			m.status = "Asking: " + q
			m.view.SetContent("")
			return m, tea.Batch(m.spin.Tick, startStream(m.client, m.events, q), m.waitForEvent())
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case streamChunkMsg:
		m.answer += string(msg)
		m.view.SetContent(m.answer)
		m.view.GotoBottom()
		return m, m.waitForEvent()

	case streamDoneMsg:
		m.busy = false
		m.status = fmt.Sprintf("Done in %s (%d chunks, %d runes). Ask another question.",
			msg.stats.Elapsed.Round(time.Millisecond), msg.stats.Chunks, msg.stats.Runes)
		return m, nil

	case streamErrMsg:
		m.busy = false
		m.status = "Error: " + msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, the streamed answer, the question box and the
// status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Paper QA") + " " + docStyle.Render(m.doc)
	answer := answerBoxStyle.Render(m.view.View())
	question := questionBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spin.View() + " " + status
	}
	return header + "\n" + answer + "\n" + question + "\n" + statusStyle.Render(status)
}

var (
	headerStyle      = lipgloss.NewStyle().Bold(true)
	docStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	answerBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
