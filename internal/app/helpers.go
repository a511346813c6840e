package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/jirawatch/internal/engine"
	"github.com/nhle/jirawatch/internal/jira"
	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/ui/pending"
	"github.com/nhle/jirawatch/internal/ui/picker"
	"github.com/nhle/jirawatch/internal/ui/settings"
	"github.com/nhle/jirawatch/internal/ui/slotlist"
	"github.com/nhle/jirawatch/internal/ui/worklogform"
)

// remoteTimeout bounds UI-initiated remote calls. Submissions get a
// longer budget because they may sit out rate-limit backoff.
const (
	remoteTimeout = 30 * time.Second
	submitTimeout = 3 * time.Minute
)

// engineEventMsg wraps one engine notification for the update loop.
type engineEventMsg struct {
	event engine.Event
}

// slotActionErrMsg carries the outcome of a start/stop toggle.
type slotActionErrMsg struct {
	err error
}

// submitResultMsg carries the outcome of a draft submission.
type submitResultMsg struct {
	draftID string
	err     error
}

// connectionTestedMsg carries the outcome of a settings connection test.
type connectionTestedMsg struct {
	displayName string
	err         error
}

// settingsSavedResultMsg carries the outcome of persisting settings.
type settingsSavedResultMsg struct {
	err error
}

// waitForEngineEvent blocks on the engine's event channel and feeds the
// next notification into the update loop. Re-armed after every event.
func (m Model) waitForEngineEvent() tea.Cmd {
	events := m.engine.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return engineEventMsg{event: ev}
	}
}

// refreshSlots rebuilds the slot rows from the engine, including live
// running totals and the auto-paused markers.
func (m Model) refreshSlots() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		autoPaused := make(map[string]bool)
		for _, id := range e.AutoPaused() {
			autoPaused[id] = true
		}

		slots := e.Slots()
		rows := make([]slotlist.Row, 0, len(slots))
		for _, slot := range slots {
			seconds := slot.Seconds
			if live, err := e.LiveSeconds(slot.ID); err == nil {
				seconds = live
			}
			rows = append(rows, slotlist.Row{
				ID:         slot.ID,
				IssueKey:   slot.IssueKey,
				Summary:    slot.Summary,
				Seconds:    seconds,
				Running:    slot.Running,
				AutoPaused: !slot.Running && autoPaused[slot.ID],
			})
		}
		return slotlist.RowsMsg{Rows: rows}
	}
}

// refreshPending rebuilds the pending draft rows from the engine.
func (m Model) refreshPending() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		drafts := e.Drafts()
		rows := make([]pending.Row, 0, len(drafts))
		for _, d := range drafts {
			state, err := e.DraftStatus(d.ID)
			if err != nil {
				continue
			}
			rows = append(rows, pending.Row{
				DraftID:   d.ID,
				IssueKey:  d.IssueKey,
				Seconds:   d.Seconds,
				State:     state,
				CreatedAt: d.CreatedAt,
				LastError: d.LastError,
			})
		}
		return pending.RowsMsg{Rows: rows}
	}
}

// resolveFilter resolves a picker query into an issue list.
func (m Model) resolveFilter(query string) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()

		refs, err := e.ResolveFilter(ctx, query)
		return picker.IssuesLoadedMsg{Refs: refs, Err: err}
	}
}

// loadFavourites fetches the user's starred filters for the picker hint.
func (m Model) loadFavourites() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()

		filters, err := e.ListFavouriteFilters(ctx)
		return picker.FavouritesLoadedMsg{Filters: filters, Err: err}
	}
}

// createDraft turns a completed worklog dialog into a pending draft and,
// when asked, submits it right away.
func (m Model) createDraft(msg worklogform.SubmitMsg) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		draft, err := e.CreateDraft(msg.SlotID, msg.Seconds, msg.Comment, msg.Estimate)
		if err != nil {
			return slotActionErrMsg{err: err}
		}
		if !msg.SubmitNow {
			return submitResultMsg{draftID: draft.ID}
		}

		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return submitResultMsg{draftID: draft.ID, err: e.Submit(ctx, draft.ID)}
	}
}

// submitDraft submits one pending draft.
func (m Model) submitDraft(draftID string) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return submitResultMsg{draftID: draftID, err: e.Submit(ctx, draftID)}
	}
}

// submitAll submits every pending draft.
func (m Model) submitAll() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return submitResultMsg{err: e.SubmitAll(ctx)}
	}
}

// testConnection verifies the settings form's credentials before saving.
// It builds a throwaway client so the engine's active client is not
// replaced by values the user may still discard.
func (m Model) testConnection(creds model.Credentials) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()

		name, err := jira.NewSyncClient(creds).TestConnection(ctx)
		return connectionTestedMsg{displayName: name, err: err}
	}
}

// startSettings opens the settings form prefilled with the current
// config and the stored token.
func (m *Model) startSettings() tea.Cmd {
	token := ""
	if m.loadToken != nil {
		if t, err := m.loadToken(); err == nil {
			token = t
		}
	}
	return m.settingsForm.Start(m.cfg, token)
}

// applySettings persists the new configuration and token and swaps the
// engine's Jira client.
func (m *Model) applySettings(msg settings.SavedMsg) tea.Cmd {
	m.cfg = msg.Config
	e := m.engine
	configPath := m.configPath
	saveToken := m.saveToken

	e.SetCredentials(model.Credentials{
		BaseURL:  msg.Config.Jira.BaseURL,
		Email:    msg.Config.Jira.Email,
		APIToken: msg.APIToken,
	})

	return func() tea.Msg {
		cfg := msg.Config
		if err := model.SaveConfig(configPath, &cfg); err != nil {
			return settingsSavedResultMsg{err: err}
		}
		if saveToken != nil {
			if err := saveToken(msg.APIToken); err != nil {
				return settingsSavedResultMsg{err: err}
			}
		}
		return settingsSavedResultMsg{}
	}
}
