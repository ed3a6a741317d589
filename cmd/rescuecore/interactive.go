package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"rescuecore/internal/core"
	"rescuecore/internal/types"
)

// Default demo location (Wenchuan area) for console requests that carry no
// coordinates of their own.
const (
	consoleDefaultLat = 31.68
	consoleDefaultLng = 103.85
)

var (
	consoleTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	consolePromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	consoleErrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	consoleMetaStyle   = lipgloss.NewStyle().Faint(true)
)

// consoleModel is the interactive console: type a disaster report, get a
// rendered response plan.
type consoleModel struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	renderer  *glamour.TermRenderer

	analyzer *core.Analyzer
	fixtures bool

	lines     []string
	isLoading bool
	ready     bool
	width     int
	height    int
	err       error
}

type (
	analysisMsg *types.Output
	consoleErr  error
)

// runInteractive starts the console. Without an API key the pipeline runs
// against the deterministic fixtures, which makes the console usable offline.
func runInteractive() error {
	fixtures := cfg.LLM.APIKey == ""

	var analyzer *core.Analyzer
	var cleanup closer = func() {}
	if fixtures {
		deps, err := core.FixtureDeps(consoleDefaultLat, consoleDefaultLng)
		if err != nil {
			return err
		}
		analyzer, err = core.NewAnalyzer(cfg, deps)
		if err != nil {
			return err
		}
	} else {
		deps, c, err := buildDeps(context.Background(), cfg)
		if err != nil {
			return err
		}
		cleanup = c
		analyzer, err = core.NewAnalyzer(cfg, deps)
		if err != nil {
			cleanup()
			return err
		}
	}
	defer cleanup()

	_, err := tea.NewProgram(newConsole(analyzer, fixtures), tea.WithAltScreen()).Run()
	return err
}

func newConsole(analyzer *core.Analyzer, fixtures bool) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "Describe the disaster... (Enter to analyze, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 2048
	ti.Width = 100
	ti.PromptStyle = consolePromptStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = consolePromptStyle

	vp := viewport.New(100, 24)

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(96),
	)

	return consoleModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		renderer:  renderer,
		analyzer:  analyzer,
		fixtures:  fixtures,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 5
		m.textinput.Width = msg.Width - 4
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.isLoading {
				return m, nil
			}
			description := strings.TrimSpace(m.textinput.Value())
			if description == "" {
				return m, nil
			}
			m.textinput.Reset()
			m.isLoading = true
			m.err = nil
			m.appendLine(consolePromptStyle.Render("> ") + description)
			return m, tea.Batch(m.spinner.Tick, m.analyzeCmd(description))
		}

	case analysisMsg:
		m.isLoading = false
		m.appendOutput((*types.Output)(msg))
		return m, nil

	case consoleErr:
		m.isLoading = false
		m.err = msg
		return m, nil

	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var tiCmd, vpCmd tea.Cmd
	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m consoleModel) View() string {
	if !m.ready {
		return "loading..."
	}

	mode := "live"
	if m.fixtures {
		mode = "fixtures"
	}
	header := consoleTitleStyle.Render("rescuecore console") +
		consoleMetaStyle.Render(fmt.Sprintf("  [%s]", mode))

	status := ""
	if m.isLoading {
		status = m.spinner.View() + " analyzing..."
	} else if m.err != nil {
		status = consoleErrStyle.Render("error: " + m.err.Error())
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), status, m.textinput.View())
}

// analyzeCmd runs one request off the UI goroutine.
func (m consoleModel) analyzeCmd(description string) tea.Cmd {
	analyzer := m.analyzer
	return func() tea.Msg {
		req := &types.Request{
			EventID:             "EVT-" + uuid.New().String()[:8],
			DisasterDescription: description,
			StructuredInput: map[string]interface{}{
				"location": map[string]interface{}{
					"latitude":  consoleDefaultLat,
					"longitude": consoleDefaultLng,
				},
			},
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		return analysisMsg(analyzer.Analyze(ctx, req))
	}
}

func (m *consoleModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *consoleModel) appendOutput(out *types.Output) {
	if !out.Success {
		m.appendLine(consoleErrStyle.Render(fmt.Sprintf("analysis failed: %s", strings.Join(out.Errors, "; "))))
		return
	}

	rec := out.RecommendedScheme
	m.appendLine(consoleMetaStyle.Render(fmt.Sprintf(
		"%s: %d teams, %.0f%% coverage, first complete response in %.0f min (%dms)",
		rec.SolutionID, rec.TeamsCount, rec.CoverageRate*100,
		rec.ResponseTimeMin, out.ExecutionTimeMS)))

	if out.SchemeExplanation != "" {
		rendered := out.SchemeExplanation
		if m.renderer != nil {
			if r, err := m.renderer.Render(out.SchemeExplanation); err == nil {
				rendered = r
			}
		}
		m.appendLine(rendered)
	}
	for _, w := range out.Trace.Warnings {
		m.appendLine(consoleMetaStyle.Render("warning: " + w))
	}
}
