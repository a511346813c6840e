// Package worklogform implements the log-work dialog.
package worklogform

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/theme"
)

// SubmitMsg is dispatched when the user confirms the dialog. SubmitNow
// distinguishes immediate submission from save-for-later.
type SubmitMsg struct {
	SlotID    string
	Seconds   int64
	Comment   string
	Estimate  model.EstimateAdjustment
	SubmitNow bool
}

// CancelMsg is dispatched when the user aborts the dialog.
type CancelMsg struct{}

const (
	actionSubmit = "submit"
	actionSave   = "save"
)

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	duration  string
	comment   string
	estimate  string
	remaining string
	action    string
}

// Model is the Bubble Tea model for the worklog dialog.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	slotID   string
	issueKey string
	width    int
	height   int
}

// New creates a new worklog form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start initializes the dialog for the given slot, prefilled with its
// accumulated duration and draft comment.
func (m *Model) Start(slot model.TimerSlot, liveSeconds int64) tea.Cmd {
	m.slotID = slot.ID
	m.issueKey = slot.IssueKey
	m.fb.duration = model.FormatDuration(liveSeconds)
	m.fb.comment = slot.Comment
	m.fb.estimate = string(model.EstimateAuto)
	m.fb.remaining = ""
	m.fb.action = actionSubmit
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the worklog dialog.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the worklog dialog.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Log Work on "+m.issueKey) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the dialog dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Time Spent").
				Placeholder("2h 30m").
				Value(&m.fb.duration).
				Validate(validateDuration),
			huh.NewText().
				Title("Comment").
				Placeholder("Optional worklog comment...").
				Value(&m.fb.comment),
			huh.NewSelect[string]().
				Title("Remaining Estimate").
				Options(
					huh.NewOption("Adjust automatically", string(model.EstimateAuto)),
					huh.NewOption("Set manually", string(model.EstimateManual)),
					huh.NewOption("Leave unchanged", string(model.EstimateLeave)),
				).
				Value(&m.fb.estimate),
			huh.NewInput().
				Title("New Remaining").
				Placeholder("1h (only for manual)").
				Value(&m.fb.remaining).
				Validate(m.validateRemaining),
			huh.NewSelect[string]().
				Title("Action").
				Options(
					huh.NewOption("Submit now", actionSubmit),
					huh.NewOption("Save for later", actionSave),
				).
				Value(&m.fb.action),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	seconds, err := model.ParseDuration(m.fb.duration)
	if err != nil {
		return func() tea.Msg { return CancelMsg{} }
	}

	estimate := model.EstimateAdjustment{Mode: model.EstimateMode(m.fb.estimate)}
	if estimate.Mode == model.EstimateManual {
		remaining, err := model.ParseDuration(m.fb.remaining)
		if err != nil {
			return func() tea.Msg { return CancelMsg{} }
		}
		estimate.RemainingSeconds = remaining
	}

	msg := SubmitMsg{
		SlotID:    m.slotID,
		Seconds:   seconds,
		Comment:   m.fb.comment,
		Estimate:  estimate,
		SubmitNow: m.fb.action == actionSubmit,
	}
	return func() tea.Msg { return msg }
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
	if h < 10 {
		h = 10
	}
	return h
}

func validateDuration(s string) error {
	if _, err := model.ParseDuration(s); err != nil {
		return fmt.Errorf("invalid duration, use forms like 2h 30m")
	}
	return nil
}

// validateRemaining only applies when the manual estimate mode is chosen.
func (m *Model) validateRemaining(s string) error {
	if m.fb.estimate != string(model.EstimateManual) {
		return nil
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("remaining estimate is required for manual mode")
	}
	return validateDuration(s)
}
