// Package editform implements the manual duration correction dialog.
package editform

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/theme"
)

// DoneMsg is dispatched when the user confirms the new duration.
type DoneMsg struct {
	SlotID  string
	Seconds int64
}

// CancelMsg is dispatched when the user aborts the dialog.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	duration string
}

// Model is the Bubble Tea model for the duration edit dialog.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	slotID   string
	issueKey string
	width    int
	height   int
}

// New creates a new edit form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start initializes the dialog for the given slot, prefilled with its
// current duration.
func (m *Model) Start(slot model.TimerSlot, liveSeconds int64) tea.Cmd {
	m.slotID = slot.ID
	m.issueKey = slot.IssueKey
	m.fb.duration = model.FormatDuration(liveSeconds)
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tracked Time").
				Placeholder("2h 30m").
				Value(&m.fb.duration).
				Validate(validateDuration),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
	return m.form.Init()
}

// Update handles messages for the edit dialog.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		seconds, err := model.ParseDuration(m.fb.duration)
		if err != nil {
			return m, func() tea.Msg { return CancelMsg{} }
		}
		slotID := m.slotID
		return m, func() tea.Msg { return DoneMsg{SlotID: slotID, Seconds: seconds} }
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the edit dialog.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := "Edit Time"
	if m.issueKey != "" {
		title = "Edit Time on " + m.issueKey
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(title) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the dialog dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 8 {
		h = 8
	}
	return h
}

func validateDuration(s string) error {
	if _, err := model.ParseDuration(s); err != nil {
		return fmt.Errorf("invalid duration, use forms like 2h 30m")
	}
	return nil
}
