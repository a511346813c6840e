// Package help renders the full key reference overlay.
package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/keys"
	"github.com/nhle/jirawatch/internal/theme"
)

// Model shows every binding grouped the way FullHelp lays them out.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates the overlay for the given key map.
func New(km *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.ShowAll = true
	h.Width = width
	return Model{keys: km, help: h, width: width, height: height}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Update is a no-op; the overlay is static and the root model handles
// the key that closes it.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the key reference inside a bordered panel.
func (m Model) View() string {
	m.help.Width = m.width - 4

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Key reference")

	footer := theme.HelpStyle.Render("? or esc returns to the timers")

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.help.View(m.keys),
		"",
		footer,
	)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the overlay dimensions on terminal resize.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
