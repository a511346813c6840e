// Package app hosts the root Bubble Tea model that routes between the
// timer list, the dialogs, and the pending worklogs panel, and bridges
// engine events into the update loop.
package app

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/jirawatch/internal/engine"
	"github.com/nhle/jirawatch/internal/keys"
	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/registry"
	"github.com/nhle/jirawatch/internal/submit"
	"github.com/nhle/jirawatch/internal/ui"
	"github.com/nhle/jirawatch/internal/ui/editform"
	helpview "github.com/nhle/jirawatch/internal/ui/help"
	"github.com/nhle/jirawatch/internal/ui/pending"
	"github.com/nhle/jirawatch/internal/ui/picker"
	"github.com/nhle/jirawatch/internal/ui/settings"
	"github.com/nhle/jirawatch/internal/ui/slotlist"
	"github.com/nhle/jirawatch/internal/ui/worklogform"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewWorklog
	ViewSettings
	ViewPicker
	ViewPending
	ViewEdit
	ViewHelp
)

// Model is the root Bubble Tea model.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	engine       *engine.Engine
	cfg          model.AppConfig
	configPath   string
	keys         *keys.KeyMap

	slotList     slotlist.Model
	pendingView  pending.Model
	helpView     helpview.Model
	worklogForm  worklogform.Model
	settingsForm settings.Model
	pickerView   picker.Model
	editForm     editform.Model

	// loadToken and saveToken access the keyring; injected so the app
	// model stays testable without a real keyring backend.
	loadToken func() (string, error)
	saveToken func(string) error

	ready         bool
	statusMessage string

	// pickerSlotID is the slot awaiting an issue assignment.
	pickerSlotID string
}

// New creates the root application model.
func New(
	e *engine.Engine,
	cfg model.AppConfig,
	configPath string,
	loadToken func() (string, error),
	saveToken func(string) error,
) Model {
	km := keys.DefaultKeyMap()

	return Model{
		currentView:  ViewList,
		engine:       e,
		cfg:          cfg,
		configPath:   configPath,
		keys:         km,
		slotList:     slotlist.New(km, 80, 24),
		pendingView:  pending.New(km, 80, 24),
		helpView:     helpview.New(km, 80, 24),
		worklogForm:  worklogform.New(80, 24),
		settingsForm: settings.New(80, 24),
		pickerView:   picker.New(km, 80, 24),
		editForm:     editform.New(80, 24),
		loadToken:    loadToken,
		saveToken:    saveToken,
	}
}

// Init starts the display tick and the engine event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshSlots(),
		m.waitForEngineEvent(),
		tickCmd(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w := m.layout.ContentWidth()
		h := m.layout.ContentHeight()
		m.slotList.SetSize(w, h)
		m.pendingView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.worklogForm.SetSize(w, h)
		m.settingsForm.SetSize(w, h)
		m.pickerView.SetSize(w, h)
		m.editForm.SetSize(w, h)
		return m.updateActiveView(msg)

	case tickMsg:
		// Redraw running clocks once a second; the engine computes live
		// totals lazily, no state changes here.
		if m.currentView == ViewList {
			return m, tea.Batch(m.refreshSlots(), tickCmd())
		}
		return m, tickCmd()

	case engineEventMsg:
		return m.handleEngineEvent(msg)

	case slotActionErrMsg:
		if msg.err != nil {
			m.statusMessage = actionErrorText(msg.err)
		}
		return m, m.refreshSlots()

	case submitResultMsg:
		if msg.err != nil && !errors.Is(msg.err, submit.ErrAlreadySubmitting) {
			m.statusMessage = "submit failed: " + msg.err.Error()
		}
		return m, m.refreshPending()

	case picker.ResolveRequestMsg:
		return m, m.resolveFilter(msg.Query)

	case picker.IssuesLoadedMsg, picker.FavouritesLoadedMsg:
		var cmd tea.Cmd
		m.pickerView, cmd = m.pickerView.Update(msg)
		return m, cmd

	case picker.ChosenMsg:
		m.currentView = ViewList
		if m.pickerSlotID != "" {
			if err := m.engine.AssignIssue(m.pickerSlotID, msg.IssueKey); err != nil {
				m.statusMessage = actionErrorText(err)
			}
			m.pickerSlotID = ""
		}
		return m, m.refreshSlots()

	case picker.CancelMsg:
		m.currentView = ViewList
		m.pickerSlotID = ""
		return m, nil

	case worklogform.SubmitMsg:
		m.currentView = ViewList
		return m, m.createDraft(msg)

	case worklogform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case editform.DoneMsg:
		m.currentView = ViewList
		if err := m.engine.EditDuration(msg.SlotID, msg.Seconds); err != nil {
			m.statusMessage = actionErrorText(err)
		}
		return m, m.refreshSlots()

	case editform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case settings.TestRequestMsg:
		return m, m.testConnection(msg.Credentials)

	case connectionTestedMsg:
		if msg.err != nil {
			// Reopen the form with the typed values so nothing is lost.
			res := m.settingsForm.Result()
			cmd := m.settingsForm.Start(res.Config, res.APIToken)
			m.settingsForm.SetTestResult("Connection failed: " + msg.err.Error())
			return m, cmd
		}
		m.statusMessage = "connected as " + msg.displayName
		res := m.settingsForm.Result()
		return m, func() tea.Msg { return res }

	case settings.SavedMsg:
		m.currentView = ViewList
		return m, m.applySettings(msg)

	case settings.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case settingsSavedResultMsg:
		if msg.err != nil {
			m.statusMessage = "saving settings: " + msg.err.Error()
		} else {
			m.statusMessage = "settings saved"
		}
		return m, nil

	case pending.SubmitRequestMsg:
		return m, m.submitDraft(msg.DraftID)

	case pending.SubmitAllRequestMsg:
		return m, m.submitAll()

	case pending.DiscardRequestMsg:
		if err := m.engine.DiscardDraft(msg.DraftID); err != nil {
			m.statusMessage = actionErrorText(err)
		}
		return m, m.refreshPending()

	case pending.CloseMsg:
		m.currentView = ViewList
		return m, m.refreshSlots()

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	return m.updateActiveView(msg)
}

// handleKeys processes global keys, then delegates to the active view.
func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "q":
		if m.currentView == ViewList {
			return m, tea.Quit
		}

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil
		}
		if m.currentView == ViewList {
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil
		}

	case "esc":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil
		}
	}

	if m.currentView != ViewList {
		return m.updateActiveView(msg)
	}

	switch msg.String() {
	case "a":
		m.engine.CreateSlot()
		return m, m.refreshSlots()

	case "x":
		if id := m.slotList.SelectedID(); id != "" {
			if err := m.engine.RemoveSlot(id); err != nil {
				m.statusMessage = actionErrorText(err)
			}
		}
		return m, m.refreshSlots()

	case " ", "enter":
		if row, ok := m.slotList.SelectedRow(); ok {
			return m, m.toggleSlot(row)
		}
		return m, nil

	case "e":
		if row, ok := m.slotList.SelectedRow(); ok {
			slot, err := m.engine.Slot(row.ID)
			if err != nil {
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewEdit
			return m, m.editForm.Start(slot, row.Seconds)
		}
		return m, nil

	case "r":
		if id := m.slotList.SelectedID(); id != "" {
			if err := m.engine.Reset(id); err != nil {
				m.statusMessage = actionErrorText(err)
			}
		}
		return m, m.refreshSlots()

	case "i":
		if id := m.slotList.SelectedID(); id != "" {
			m.pickerSlotID = id
			m.previousView = m.currentView
			m.currentView = ViewPicker
			return m, tea.Batch(
				m.pickerView.Start(m.cfg.Jira.DefaultFilter),
				m.loadFavourites(),
			)
		}
		return m, nil

	case "w":
		if row, ok := m.slotList.SelectedRow(); ok {
			slot, err := m.engine.Slot(row.ID)
			if err != nil {
				return m, nil
			}
			if slot.IssueKey == "" {
				m.statusMessage = "assign an issue before logging work"
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewWorklog
			return m, m.worklogForm.Start(slot, row.Seconds)
		}
		return m, nil

	case "P":
		if stopped := m.engine.PauseAll(); len(stopped) > 0 {
			m.statusMessage = fmt.Sprintf("paused %d timer(s)", len(stopped))
		}
		return m, m.refreshSlots()

	case "p":
		m.previousView = m.currentView
		m.currentView = ViewPending
		return m, m.refreshPending()

	case "S":
		return m, m.submitAll()

	case "s":
		m.previousView = m.currentView
		m.currentView = ViewSettings
		return m, m.startSettings()
	}

	return m.updateActiveView(msg)
}

// toggleSlot stops a running slot, or switches to a stopped one.
func (m Model) toggleSlot(row slotlist.Row) tea.Cmd {
	e := m.engine
	if row.Running {
		return func() tea.Msg { return slotActionErrMsg{err: e.Stop(row.ID)} }
	}
	return func() tea.Msg { return slotActionErrMsg{err: e.Switch(row.ID)} }
}

// handleEngineEvent reacts to an engine notification and re-arms the pump.
func (m Model) handleEngineEvent(msg engineEventMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitForEngineEvent()}

	switch msg.event.Kind {
	case engine.EventSlotsChanged, engine.EventIssueResolved:
		cmds = append(cmds, m.refreshSlots())

	case engine.EventDraftsChanged:
		cmds = append(cmds, m.refreshPending())

	case engine.EventSubmitState:
		if msg.event.State == submit.StateConfirmed {
			m.statusMessage = "worklog submitted"
		} else if msg.event.Err != nil {
			m.statusMessage = "submit: " + msg.event.Err.Error()
		}
		cmds = append(cmds, m.refreshPending())

	case engine.EventIdleStarted:
		if n := len(msg.event.Paused); n > 0 {
			m.statusMessage = fmt.Sprintf("screen locked, paused %d timer(s)", n)
		}
		cmds = append(cmds, m.refreshSlots())

	case engine.EventIdleEnded:
		if len(m.engine.AutoPaused()) > 0 {
			m.statusMessage = "welcome back, timers stay paused until you resume them"
		}
		cmds = append(cmds, m.refreshSlots())

	case engine.EventPersistFailed:
		m.statusMessage = "saving state failed: " + msg.event.Err.Error()

	case engine.EventTransitionFailed:
		m.statusMessage = "could not move issue to In Progress"
	}

	return m, tea.Batch(cmds...)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.slotList, cmd = m.slotList.Update(msg)
	case ViewWorklog:
		m.worklogForm, cmd = m.worklogForm.Update(msg)
	case ViewSettings:
		m.settingsForm, cmd = m.settingsForm.Update(msg)
	case ViewPicker:
		m.pickerView, cmd = m.pickerView.Update(msg)
	case ViewPending:
		m.pendingView, cmd = m.pendingView.Update(msg)
	case ViewEdit:
		m.editForm, cmd = m.editForm.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("jirawatch", m.headerStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.slotList.View()
	case ViewWorklog:
		return m.worklogForm.View()
	case ViewSettings:
		return m.settingsForm.View()
	case ViewPicker:
		return m.pickerView.View()
	case ViewPending:
		return m.pendingView.View()
	case ViewEdit:
		return m.editForm.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// headerStatus summarizes what is currently counting.
func (m Model) headerStatus() string {
	running := 0
	var activeKey string
	for _, slot := range m.engine.Slots() {
		if slot.Running {
			running++
			if slot.IssueKey != "" {
				activeKey = slot.IssueKey
			}
		}
	}

	switch {
	case running == 0:
		return "stopped"
	case running == 1 && activeKey != "":
		return "tracking " + activeKey
	default:
		return fmt.Sprintf("tracking %d timers", running)
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusMessage != "" && m.currentView == ViewList {
		return m.statusMessage
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help"
	case ViewWorklog, ViewEdit, ViewSettings:
		return "enter next | esc cancel"
	case ViewPicker:
		return "enter resolve/choose | tab switch focus | esc back"
	case ViewPending:
		return "enter submit | S submit all | d discard | esc back"
	default:
		return "a add | space start/stop | i issue | w log work | p pending | s settings | ? help | q quit"
	}
}

// actionErrorText maps engine errors to short status bar messages.
func actionErrorText(err error) string {
	switch {
	case errors.Is(err, registry.ErrSlotBusy):
		return "stop the timer before removing it"
	case errors.Is(err, registry.ErrAlreadyRunning):
		return "another timer is already running"
	case errors.Is(err, engine.ErrNotConfigured):
		return "configure the Jira connection first (press s)"
	default:
		return err.Error()
	}
}

// tickMsg fires once a second to refresh running clock displays.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
