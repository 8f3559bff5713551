package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ocode/internal/query"
)

var (
	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	scrollHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

type askModel struct {
	target   string
	question string
	runner   *query.Runner
	opts     query.Options

	loading bool
	spinner spinner.Model
	result  *query.Result
	err     error

	viewport viewport.Model
	ready    bool
}

type resultMsg struct {
	result *query.Result
	err    error
}

func (m askModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		runAskQuery(m.runner, m.target, m.question, m.opts),
	)
}

func (m askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		if m.ready && !m.loading {
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case resultMsg:
		m.loading = false
		m.result = msg.result
		m.err = msg.err
		m.viewport.SetContent(m.buildResultView())
		return m, nil
	}

	return m, cmd
}

func (m askModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var s strings.Builder

	s.WriteString(headerStyle.Render("Query: "))
	s.WriteString(m.question)
	s.WriteString("\n\n")

	if m.loading {
		s.WriteString(m.spinner.View())
		s.WriteString(fmt.Sprintf(" Querying Ollama (%s)...", m.runner.Client().Model()))
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("This may take a while for long prompts..."))
		return s.String()
	}

	s.WriteString(m.viewport.View())
	s.WriteString("\n")

	if m.viewport.TotalLineCount() > m.viewport.Height {
		s.WriteString(scrollHintStyle.Render(fmt.Sprintf(
			"↑/↓: scroll • %d%% • q: quit",
			int(m.viewport.ScrollPercent()*100),
		)))
	} else {
		s.WriteString(scrollHintStyle.Render("Press q to quit"))
	}

	return s.String()
}

func (m askModel) buildResultView() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
		s.WriteString(dimStyle.Render("Troubleshooting:\n"))
		s.WriteString(dimStyle.Render("  1. Check if Ollama is running: curl http://localhost:11434/api/tags\n"))
		s.WriteString(dimStyle.Render("  2. Check if model exists: ollama list\n"))
		s.WriteString(dimStyle.Render("  3. Pull model if needed: ollama pull <model>\n"))
		return s.String()
	}

	if m.result == nil {
		return errStyle.Render("No result received\n")
	}

	if m.result.Answer != "" {
		s.WriteString(answerStyle.Render(m.result.Answer))
		s.WriteString("\n\n")
	} else {
		s.WriteString(errStyle.Render("Received empty response from Ollama\n\n"))
	}

	s.WriteString(dimStyle.Render(fmt.Sprintf("~%d prompt tokens • num_ctx %d • %.2fs",
		m.result.EstimatedTokens, m.result.ContextSize, m.result.Duration.Seconds())))
	if m.result.Source == "cache" {
		s.WriteString(dimStyle.Render(" [cached]"))
	}
	s.WriteString("\n")

	return s.String()
}

func runAskQuery(runner *query.Runner, target, question string, opts query.Options) tea.Cmd {
	return func() tea.Msg {
		opts.Stream = false
		opts.Out = io.Discard
		result, err := runner.Run(context.Background(), target, question, opts)
		return resultMsg{result: result, err: err}
	}
}

func runAskTUI(runner *query.Runner, target, question string, opts query.Options) error {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := askModel{
		target:   target,
		question: question,
		runner:   runner,
		opts:     opts,
		loading:  true,
		spinner:  sp,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	// The query error only lives on the final model; surface it so the
	// process still exits non-zero after the view closes.
	if fm, ok := final.(askModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
