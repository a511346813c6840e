// Package settings implements the connection and behavior settings form.
package settings

import (
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/theme"
)

// SavedMsg is dispatched when the user saves the settings form. The API
// token is carried separately from the config because it goes to the
// keyring, never to the YAML file.
type SavedMsg struct {
	Config   model.AppConfig
	APIToken string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// TestRequestMsg asks the app to run a connection test with the form's
// current values before saving.
type TestRequestMsg struct {
	Credentials model.Credentials
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	baseURL           string
	email             string
	apiToken          string
	defaultFilter     string
	exclusive         bool
	pauseOnLock       bool
	transitionOnStart bool
	testFirst         bool
}

// Model is the Bubble Tea model for the settings form.
type Model struct {
	form       *huh.Form
	fb         *formBindings
	cfg        model.AppConfig
	testResult string
	width      int
	height     int
}

// New creates a new settings form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start initializes the form from the current configuration and token.
func (m *Model) Start(cfg model.AppConfig, apiToken string) tea.Cmd {
	m.cfg = cfg
	m.testResult = ""
	m.fb.baseURL = cfg.Jira.BaseURL
	m.fb.email = cfg.Jira.Email
	m.fb.apiToken = apiToken
	m.fb.defaultFilter = cfg.Jira.DefaultFilter
	m.fb.exclusive = cfg.Timers.Exclusive
	m.fb.pauseOnLock = cfg.Timers.PauseOnLock
	m.fb.transitionOnStart = cfg.Timers.TransitionOnStart
	m.fb.testFirst = false
	m.form = m.buildForm()
	return m.form.Init()
}

// SetTestResult shows the outcome of a connection test inside the form view.
func (m *Model) SetTestResult(result string) {
	m.testResult = result
}

// Update handles messages for the settings form.
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

// View renders the settings form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Settings") + "\n" + m.form.View()
	if m.testResult != "" {
		content += "\n" + theme.HelpStyle.Render(m.testResult)
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Jira Base URL").
				Placeholder("https://yourcompany.atlassian.net").
				Value(&m.fb.baseURL).
				Validate(validateBaseURL),
			huh.NewInput().
				Title("Account Email").
				Placeholder("you@example.com").
				Value(&m.fb.email).
				Validate(validateRequired("Email")),
			huh.NewInput().
				Title("API Token").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.apiToken).
				Validate(validateRequired("API token")),
			huh.NewInput().
				Title("Default Filter").
				Placeholder("Saved filter id, JQL, or issue URL (optional)").
				Value(&m.fb.defaultFilter),
			huh.NewConfirm().
				Title("Exclusive timers").
				Description("Allow only one timer to run at a time").
				Value(&m.fb.exclusive),
			huh.NewConfirm().
				Title("Pause on lock").
				Description("Stop running timers when the screen locks").
				Value(&m.fb.pauseOnLock),
			huh.NewConfirm().
				Title("Transition on start").
				Description("Move the issue to In Progress when its timer starts").
				Value(&m.fb.transitionOnStart),
			huh.NewConfirm().
				Title("Test connection before saving").
				Value(&m.fb.testFirst),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	cfg := m.cfg
	cfg.Jira.BaseURL = strings.TrimRight(strings.TrimSpace(m.fb.baseURL), "/")
	cfg.Jira.Email = strings.TrimSpace(m.fb.email)
	cfg.Jira.DefaultFilter = strings.TrimSpace(m.fb.defaultFilter)
	cfg.Timers.Exclusive = m.fb.exclusive
	cfg.Timers.PauseOnLock = m.fb.pauseOnLock
	cfg.Timers.TransitionOnStart = m.fb.transitionOnStart
	token := strings.TrimSpace(m.fb.apiToken)

	if m.fb.testFirst {
		creds := model.Credentials{
			BaseURL:  cfg.Jira.BaseURL,
			Email:    cfg.Jira.Email,
			APIToken: token,
		}
		return func() tea.Msg { return TestRequestMsg{Credentials: creds} }
	}

	return func() tea.Msg { return SavedMsg{Config: cfg, APIToken: token} }
}

// Result returns the form's current values as a SavedMsg, used after a
// successful connection test.
func (m Model) Result() SavedMsg {
	cfg := m.cfg
	cfg.Jira.BaseURL = strings.TrimRight(strings.TrimSpace(m.fb.baseURL), "/")
	cfg.Jira.Email = strings.TrimSpace(m.fb.email)
	cfg.Jira.DefaultFilter = strings.TrimSpace(m.fb.defaultFilter)
	cfg.Timers.Exclusive = m.fb.exclusive
	cfg.Timers.PauseOnLock = m.fb.pauseOnLock
	cfg.Timers.TransitionOnStart = m.fb.transitionOnStart
	return SavedMsg{Config: cfg, APIToken: strings.TrimSpace(m.fb.apiToken)}
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

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateBaseURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be a full URL like https://yourcompany.atlassian.net")
	}
	return nil
}
