// Package tui is the terminal reconstruction picker. It lists the
// tomograms of a session and loads the one chosen with enter.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tmvis/internal/models"
)

// Session is the part of the selection handler the picker drives
type Session interface {
	References() []models.ReconstructionRef
	Select(ctx context.Context, ref models.ReconstructionRef) error
	Current() (models.ReconstructionRef, bool)
	MinScore() float64
	SetMinScore(minScore float64) error
	Bin() float64
	SetBinning(factor float64) error
}

// Config holds what the CLI layer hands to the picker
type Config struct {
	Session Session

	// Log holds the viewer notifications; nil hides the panel
	Log *Log

	// Describe summarises the layers on display
	Describe func() string

	// Snapshot saves the current view; nil disables the key
	Snapshot func(ref models.ReconstructionRef) (string, error)

	// ScoreStep is the min score increment for +/-
	ScoreStep float64
}

// loadMsg asks the update loop to load ref. It arrives after the
// "loading" status has been drawn.
type loadMsg struct {
	ref models.ReconstructionRef
}

// Model is the top-level Bubble Tea model
type Model struct {
	config Config
	keys   KeyMap
	help   help.Model

	refs    []models.ReconstructionRef
	cursor  int
	loading bool
	status  string
	err     error

	width  int
	height int
}

// New creates the picker model
func New(cfg Config) Model {
	if cfg.ScoreStep <= 0 {
		cfg.ScoreStep = 0.5
	}
	return Model{
		config: cfg,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		refs:   cfg.Session.References(),
	}
}

// Init loads the first reconstruction
func (m Model) Init() tea.Cmd {
	if len(m.refs) == 0 {
		return nil
	}
	return requestLoad(m.refs[0])
}

func requestLoad(ref models.ReconstructionRef) tea.Cmd {
	return func() tea.Msg {
		return loadMsg{ref: ref}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case loadMsg:
		// The session and the viewer are only touched from the update loop
		m.loading = false
		m.err = m.config.Session.Select(context.Background(), msg.ref)
		m.status = ""
		if m.err == nil {
			m.status = "showing " + msg.ref.Stem
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.refs)-1 {
				m.cursor++
			}

		case key.Matches(msg, m.keys.Select):
			if m.loading || len(m.refs) == 0 {
				return m, nil
			}
			ref := m.refs[m.cursor]
			m.loading = true
			m.err = nil
			m.status = "loading " + ref.Stem + "..."
			return m, requestLoad(ref)

		case key.Matches(msg, m.keys.Raise), key.Matches(msg, m.keys.Lower):
			if m.loading {
				return m, nil
			}
			step := m.config.ScoreStep
			if key.Matches(msg, m.keys.Lower) {
				step = -step
			}
			m.err = m.config.Session.SetMinScore(m.config.Session.MinScore() + step)
			m.status = fmt.Sprintf("min cc %g", m.config.Session.MinScore())

		case key.Matches(msg, m.keys.Coarser), key.Matches(msg, m.keys.Finer):
			if m.loading {
				return m, nil
			}
			bin := m.config.Session.Bin() + 1
			if key.Matches(msg, m.keys.Finer) {
				bin = m.config.Session.Bin() - 1
			}
			if bin < 1 {
				return m, nil
			}
			if m.err = m.config.Session.SetBinning(bin); m.err != nil {
				return m, nil
			}
			m.status = fmt.Sprintf("bin %g", bin)
			// Volumes are sampled at load time, so the current one is reloaded
			if ref, ok := m.config.Session.Current(); ok {
				m.loading = true
				m.status = fmt.Sprintf("bin %g, reloading %s...", bin, ref.Stem)
				return m, requestLoad(ref)
			}

		case key.Matches(msg, m.keys.Snapshot):
			if m.loading || m.config.Snapshot == nil {
				return m, nil
			}
			ref, ok := m.config.Session.Current()
			if !ok {
				return m, nil
			}
			path, err := m.config.Snapshot(ref)
			m.err = err
			if err == nil {
				m.status = "saved " + path
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("tmvis") + "\n\n")

	current, hasCurrent := m.config.Session.Current()
	if len(m.refs) == 0 {
		sb.WriteString(dimStyle.Render("no reconstructions found") + "\n")
	}
	for i, ref := range m.refs {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		name := ref.Stem
		if hasCurrent && ref.Path == current.Path {
			name = currentStyle.Render(name + " *")
		}
		sb.WriteString(prefix + name + "\n")
	}
	sb.WriteString("\n")

	if m.config.Describe != nil {
		if layers := strings.TrimSpace(m.config.Describe()); layers != "" {
			sb.WriteString(panelStyle.Render(layers) + "\n")
		}
	}

	if m.config.Log != nil {
		if lines := m.config.Log.Lines(); len(lines) > 0 {
			sb.WriteString(lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n")
		}
	}

	switch {
	case m.err != nil:
		sb.WriteString(errStyle.Render(m.err.Error()) + "\n")
	case m.status != "":
		sb.WriteString(dimStyle.Render(m.status) + "\n")
	}

	sb.WriteString("\n" + m.help.View(m.keys))
	return sb.String()
}
