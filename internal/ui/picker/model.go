// Package picker implements the issue picker: a filter query input on
// top of the resolved issue list.
package picker

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/jira"
	"github.com/nhle/jirawatch/internal/keys"
	"github.com/nhle/jirawatch/internal/theme"
)

// ResolveRequestMsg asks the app to resolve a filter query into issues.
type ResolveRequestMsg struct {
	Query string
}

// IssuesLoadedMsg delivers the resolved issues (or the failure) back to
// the picker.
type IssuesLoadedMsg struct {
	Refs []jira.IssueRef
	Err  error
}

// FavouritesLoadedMsg delivers the user's starred filters.
type FavouritesLoadedMsg struct {
	Filters []jira.Filter
	Err     error
}

// ChosenMsg is dispatched when an issue is selected for the active slot.
type ChosenMsg struct {
	IssueKey string
}

// CancelMsg is dispatched when the picker is dismissed.
type CancelMsg struct{}

type issueItem struct {
	ref jira.IssueRef
}

func (i issueItem) FilterValue() string { return i.ref.Key + " " + i.ref.Summary }

type issueDelegate struct{}

func (d issueDelegate) Height() int                             { return 1 }
func (d issueDelegate) Spacing() int                            { return 0 }
func (d issueDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d issueDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ii, ok := item.(issueItem)
	if !ok {
		return
	}

	key := lipgloss.NewStyle().Foreground(theme.ColorBlue).Bold(true).Render(ii.ref.Key)
	line := fmt.Sprintf("%s  %s", key, ii.ref.Summary)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// Model is the issue picker view component.
type Model struct {
	input      textinput.Model
	list       list.Model
	keys       *keys.KeyMap
	favourites []jira.Filter
	inputFocus bool
	loading    bool
	errMessage string
	width      int
	height     int
}

// New creates a new picker model.
func New(k *keys.KeyMap, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "Filter id, JQL, or issue URL"
	ti.Prompt = "> "
	ti.Width = width - 4

	l := list.New([]list.Item{}, issueDelegate{}, width, height-4)
	l.Title = "Issues"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		input:      ti,
		list:       l,
		keys:       k,
		inputFocus: true,
		width:      width,
		height:     height,
	}
}

// Start opens the picker with the given initial query, typically the
// configured default filter.
func (m *Model) Start(query string) tea.Cmd {
	m.input.SetValue(query)
	m.inputFocus = true
	m.loading = false
	m.errMessage = ""
	m.list.SetItems(nil)
	cmds := []tea.Cmd{m.input.Focus()}
	if query != "" {
		m.loading = true
		cmds = append(cmds, resolveCmd(query))
	}
	return tea.Batch(cmds...)
}

func resolveCmd(query string) tea.Cmd {
	return func() tea.Msg { return ResolveRequestMsg{Query: query} }
}

// Update handles messages for the picker.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case IssuesLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.errMessage = msg.Err.Error()
			return m, nil
		}
		m.errMessage = ""
		items := make([]list.Item, len(msg.Refs))
		for i, ref := range msg.Refs {
			items[i] = issueItem{ref: ref}
		}
		cmd := m.list.SetItems(items)
		m.inputFocus = false
		m.input.Blur()
		return m, cmd

	case FavouritesLoadedMsg:
		if msg.Err == nil {
			m.favourites = msg.Filters
		}
		return m, nil

	case tea.KeyMsg:
		if m.inputFocus {
			return m.handleInputKeys(msg)
		}
		return m.handleListKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleInputKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		query := m.input.Value()
		if query == "" {
			return m, nil
		}
		m.loading = true
		m.errMessage = ""
		return m, resolveCmd(query)
	case "esc":
		return m, func() tea.Msg { return CancelMsg{} }
	case "tab":
		if len(m.list.Items()) > 0 {
			m.inputFocus = false
			m.input.Blur()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if item, ok := m.list.SelectedItem().(issueItem); ok {
			key := item.ref.Key
			return m, func() tea.Msg { return ChosenMsg{IssueKey: key} }
		}
		return m, nil
	case "esc", "tab":
		m.inputFocus = true
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the picker.
func (m Model) View() string {
	status := ""
	switch {
	case m.loading:
		status = theme.HelpStyle.Render("resolving...")
	case m.errMessage != "":
		status = theme.ErrorStyle.Render(m.errMessage)
	case len(m.favourites) > 0 && len(m.list.Items()) == 0:
		status = theme.HelpStyle.Render(m.favouritesHint())
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.input.View(),
		status,
		m.list.View(),
	)
}

// favouritesHint lists starred filter ids the user can type directly.
func (m Model) favouritesHint() string {
	hint := "Starred filters:"
	for i, f := range m.favourites {
		if i >= 5 {
			hint += " ..."
			break
		}
		hint += fmt.Sprintf(" %s (%s)", f.Name, f.ID)
	}
	return hint
}

// SetSize updates the picker dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 4
	m.list.SetSize(width, height-4)
}
