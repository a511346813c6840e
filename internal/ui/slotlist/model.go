// Package slotlist renders the main timer slot list.
package slotlist

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/jirawatch/internal/keys"
	"github.com/nhle/jirawatch/internal/theme"
)

// RowsMsg replaces the displayed rows. The app model rebuilds rows from
// the engine whenever slots change or the display tick fires.
type RowsMsg struct {
	Rows []Row
}

// Model is the timer slot list view component.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new slot list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Timers"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the slot list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RowsMsg:
		selected := m.SelectedID()
		items := make([]list.Item, len(msg.Rows))
		index := m.list.Index()
		for i, row := range msg.Rows {
			items[i] = SlotItem{Row: row}
			if row.ID == selected {
				index = i
			}
		}
		cmd := m.list.SetItems(items)
		if index < len(items) {
			m.list.Select(index)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the slot list.
func (m Model) View() string {
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}

// SelectedID returns the id of the focused slot, or "" when empty.
func (m Model) SelectedID() string {
	if item, ok := m.list.SelectedItem().(SlotItem); ok {
		return item.Row.ID
	}
	return ""
}

// SelectedRow returns the focused row and whether one exists.
func (m Model) SelectedRow() (Row, bool) {
	if item, ok := m.list.SelectedItem().(SlotItem); ok {
		return item.Row, true
	}
	return Row{}, false
}
