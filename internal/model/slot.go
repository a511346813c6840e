package model

import "time"

// TimerSlot is one independently trackable timer, bound to zero or one
// Jira issue. Seconds holds time accumulated across completed running
// intervals; while the slot is running, the live total is
// Seconds + (now - LastStarted).
type TimerSlot struct {
	// ID is the stable identity of the slot, preserved across restarts.
	ID string `json:"id"`

	// IssueKey is the assigned Jira issue key, empty until assigned.
	IssueKey string `json:"issue_key,omitempty"`

	// Summary and Description cache issue details for display. They are
	// advisory only and refreshed whenever the issue is (re)assigned.
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`

	// Seconds is the accumulated duration in whole seconds. Never negative.
	Seconds int64 `json:"seconds"`

	// Running reports whether the slot is currently counting.
	Running bool `json:"running"`

	// LastStarted is the instant the current running interval began.
	// Only meaningful while Running is true.
	LastStarted time.Time `json:"last_started,omitempty"`

	// Comment is the draft worklog comment attached to this slot.
	Comment string `json:"comment,omitempty"`
}

// EstimateMode selects how a worklog submission adjusts the issue's
// remaining estimate.
type EstimateMode string

const (
	// EstimateAuto lets Jira subtract the logged time from the estimate.
	EstimateAuto EstimateMode = "auto"

	// EstimateManual sets the remaining estimate to an explicit value.
	EstimateManual EstimateMode = "manual"

	// EstimateLeave leaves the remaining estimate untouched.
	EstimateLeave EstimateMode = "leave"
)

// EstimateAdjustment pairs an EstimateMode with the explicit remaining
// value used by EstimateManual.
type EstimateAdjustment struct {
	Mode EstimateMode `json:"mode"`

	// RemainingSeconds is the new remaining estimate. Only read when
	// Mode is EstimateManual.
	RemainingSeconds int64 `json:"remaining_seconds,omitempty"`
}

// WorklogDraft is a locally held, not-yet-submitted worklog. It survives
// restarts and failed submissions until confirmed or discarded.
type WorklogDraft struct {
	ID       string `json:"id"`
	SlotID   string `json:"slot_id"`
	IssueKey string `json:"issue_key"`

	// Seconds is the duration to submit. May be less than the slot's
	// accumulated duration when the user edits it down before posting.
	Seconds int64 `json:"seconds"`

	Comment  string             `json:"comment,omitempty"`
	Estimate EstimateAdjustment `json:"estimate"`

	CreatedAt time.Time `json:"created_at"`

	// LastError records why the most recent submission attempt failed,
	// for display in the pending panel. Cleared on retry.
	LastError string `json:"last_error,omitempty"`
}

// FilterCacheEntry is an advisory cache of the issue keys a filter
// resolved to, keyed in PersistedState by the filter query. Never a
// source of truth for timer state.
type FilterCacheEntry struct {
	Keys      []string  `json:"keys"`
	FetchedAt time.Time `json:"fetched_at"`
}

// StateVersion is the schema version written into every snapshot.
const StateVersion = 1

// PersistedState is the versioned snapshot written by the state store.
// Credentials are deliberately not part of it; they live in the system
// keyring so a token rotation never disturbs timer state.
type PersistedState struct {
	Version     int                         `json:"version"`
	Slots       []TimerSlot                 `json:"slots"`
	Drafts      []WorklogDraft              `json:"drafts"`
	FilterCache map[string]FilterCacheEntry `json:"filter_cache,omitempty"`
}

// Credentials holds everything needed to talk to a Jira Cloud instance.
// The API token is stored in the system keyring and must never be logged
// or written into the state snapshot.
type Credentials struct {
	BaseURL  string
	Email    string
	APIToken string
}

// Configured reports whether all fields required for API access are set.
func (c Credentials) Configured() bool {
	return c.BaseURL != "" && c.Email != "" && c.APIToken != ""
}
