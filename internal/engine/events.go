package engine

import "github.com/nhle/jirawatch/internal/submit"

// EventKind classifies engine events.
type EventKind int

const (
	// EventSlotsChanged means the slot set or a slot's state changed;
	// consumers should re-read Slots().
	EventSlotsChanged EventKind = iota

	// EventDraftsChanged means the pending draft set changed.
	EventDraftsChanged

	// EventIssueResolved means a slot's issue display cache was filled
	// (or the lookup failed, carried in Err).
	EventIssueResolved

	// EventIdleStarted reports an idle boundary; Paused lists the slots
	// that were auto-paused.
	EventIdleStarted

	// EventIdleEnded reports the end of an idle period. No slot is
	// restarted automatically.
	EventIdleEnded

	// EventSubmitState reports a draft state transition.
	EventSubmitState

	// EventPersistFailed means a state save failed; in-memory state
	// stays authoritative and the next mutation retries the write.
	EventPersistFailed

	// EventTransitionFailed means a best-effort issue transition did not
	// go through. Never fatal.
	EventTransitionFailed
)

// Event is the engine's UI-facing notification. The channel replaces
// toolkit callbacks so the engine stays independent of any event loop.
type Event struct {
	Kind    EventKind
	SlotID  string
	DraftID string
	State   submit.State
	Paused  []string
	Err     error
}
