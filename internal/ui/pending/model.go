// Package pending implements the pending worklogs panel: drafts saved
// for later, shown with their submission state and last failure.
package pending

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/keys"
	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/submit"
	"github.com/nhle/jirawatch/internal/theme"
)

// Row is one pending draft prepared for display.
type Row struct {
	DraftID   string
	IssueKey  string
	Seconds   int64
	State     submit.State
	CreatedAt time.Time
	LastError string
}

// RowsMsg replaces the displayed rows.
type RowsMsg struct {
	Rows []Row
}

// SubmitRequestMsg asks the app to submit one draft.
type SubmitRequestMsg struct {
	DraftID string
}

// SubmitAllRequestMsg asks the app to submit every pending draft.
type SubmitAllRequestMsg struct{}

// DiscardRequestMsg asks the app to discard a draft.
type DiscardRequestMsg struct {
	DraftID string
}

// CloseMsg is dispatched when the panel is dismissed.
type CloseMsg struct{}

type draftItem struct {
	row Row
}

func (i draftItem) FilterValue() string { return i.row.IssueKey }

type draftDelegate struct{}

func (d draftDelegate) Height() int                             { return 1 }
func (d draftDelegate) Spacing() int                            { return 0 }
func (d draftDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d draftDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	di, ok := item.(draftItem)
	if !ok {
		return
	}
	row := di.row

	state := theme.DraftStateStyle(row.State).Render(row.State.String())
	key := lipgloss.NewStyle().Foreground(theme.ColorBlue).Bold(true).Render(row.IssueKey)
	dur := theme.TimeStyle.Render(model.FormatDuration(row.Seconds))
	created := lipgloss.NewStyle().Foreground(theme.ColorGray).
		Render(row.CreatedAt.Format("Jan 02 15:04"))

	line := fmt.Sprintf("%s %s  %s  %s", state, key, dur, created)
	if row.LastError != "" {
		line += "  " + theme.ErrorStyle.Render(row.LastError)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// Model is the pending worklogs panel.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new pending panel model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, draftDelegate{}, width, height-2)
	l.Title = "Pending Worklogs"
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

// Update handles messages for the pending panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RowsMsg:
		selected := m.selectedID()
		items := make([]list.Item, len(msg.Rows))
		index := m.list.Index()
		for i, row := range msg.Rows {
			items[i] = draftItem{row: row}
			if row.DraftID == selected {
				index = i
			}
		}
		cmd := m.list.SetItems(items)
		if index < len(items) {
			m.list.Select(index)
		}
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if id := m.selectedID(); id != "" {
				return m, func() tea.Msg { return SubmitRequestMsg{DraftID: id} }
			}
			return m, nil
		case "S":
			return m, func() tea.Msg { return SubmitAllRequestMsg{} }
		case "d":
			if id := m.selectedID(); id != "" {
				return m, func() tea.Msg { return DiscardRequestMsg{DraftID: id} }
			}
			return m, nil
		case "esc", "p", "q":
			return m, func() tea.Msg { return CloseMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the pending panel.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		empty := theme.HelpStyle.Render("No pending worklogs. Press w on a timer to log work.")
		return lipgloss.NewStyle().Padding(1, 2).Render(empty)
	}
	return m.list.View()
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}

func (m Model) selectedID() string {
	if item, ok := m.list.SelectedItem().(draftItem); ok {
		return item.row.DraftID
	}
	return ""
}
