// Package engine wires the timer registry, persistence store, idle
// monitor, Jira sync client, and submission coordinator behind one
// UI-facing surface. Every mutating call persists a fresh snapshot
// before returning; network calls never run on the caller's critical
// path unless the caller opts in by invoking them directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/jirawatch/internal/clock"
	"github.com/nhle/jirawatch/internal/history"
	"github.com/nhle/jirawatch/internal/idle"
	"github.com/nhle/jirawatch/internal/jira"
	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/registry"
	"github.com/nhle/jirawatch/internal/statefile"
	"github.com/nhle/jirawatch/internal/submit"
)

// ErrNotConfigured is returned by remote operations before credentials
// have been set up.
var ErrNotConfigured = errors.New("engine: jira connection not configured")

// fetchTimeout bounds background issue lookups and transitions.
const fetchTimeout = 30 * time.Second

// Options configures an Engine.
type Options struct {
	Config *model.AppConfig

	// State is the snapshot store. Required.
	State *statefile.Store

	// Client talks to Jira; nil until credentials are configured.
	Client *jira.SyncClient

	// History records confirmed submissions. Optional.
	History *history.Store

	// IdleSignals is the platform lock/unlock stream. Optional.
	IdleSignals <-chan idle.Signal

	Clock clock.Clock
}

// Engine is the timer and synchronization engine.
type Engine struct {
	cfg      *model.AppConfig
	registry *registry.Registry
	state    *statefile.Store
	coord    *submit.Coordinator
	history  *history.Store
	clk      clock.Clock

	clientMu sync.RWMutex
	client   *jira.SyncClient

	filterMu    sync.Mutex
	filterCache map[string]model.FilterCacheEntry

	// persistMu serializes snapshot assembly and the state write as one
	// unit. Persists run on submission goroutines, background fetches,
	// and UI commands; without the lock a slow save could land a stale
	// snapshot over a newer one.
	persistMu sync.Mutex

	monitor *idle.Monitor
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine, loading any persisted snapshot. Slots persisted
// as running resume counting from the load instant; the downtime since
// the last save is never credited.
func New(opts Options) (*Engine, error) {
	if opts.State == nil {
		return nil, errors.New("engine: state store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &model.AppConfig{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         cfg,
		state:       opts.State,
		client:      opts.Client,
		history:     opts.History,
		clk:         clk,
		filterCache: make(map[string]model.FilterCacheEntry),
		events:      make(chan Event, 32),
		ctx:         ctx,
		cancel:      cancel,
	}

	e.registry = registry.New(registry.Options{
		Exclusive: cfg.Timers.Exclusive,
		Clock:     clk,
	})

	loaded, err := opts.State.Load()
	switch {
	case errors.Is(err, statefile.ErrNotFound):
		// First run; start empty.
	case err != nil:
		cancel()
		return nil, fmt.Errorf("loading persisted state: %w", err)
	default:
		e.registry.Restore(loaded.Slots, clk.Now())
		if loaded.FilterCache != nil {
			e.filterCache = loaded.FilterCache
		}
	}

	e.coord = submit.New(submit.Options{
		Poster:         e.poster(),
		Deduct:         e.registry,
		History:        historyRecorder(opts.History),
		Persist:        func() { e.persist() },
		Notify:         e.onSubmitNotification,
		MaxAttempts:    cfg.Submit.MaxAttempts,
		InitialBackoff: cfg.Submit.InitialBackoff,
		Clock:          clk,
	})
	if loaded != nil {
		e.coord.Restore(loaded.Drafts)
	}

	if opts.IdleSignals != nil {
		idleEvents := make(chan idle.Event, 8)
		e.monitor = idle.NewMonitor(opts.IdleSignals, idleEvents, e.registry, cfg.Timers.PauseOnLock)

		e.wg.Add(2)
		go func() {
			defer e.wg.Done()
			e.monitor.Run(ctx)
		}()
		go func() {
			defer e.wg.Done()
			e.forwardIdleEvents(idleEvents)
		}()
	}

	return e, nil
}

// historyRecorder adapts an optional *history.Store to the coordinator
// interface without passing a typed nil.
func historyRecorder(s *history.Store) submit.Recorder {
	if s == nil {
		return nil
	}
	return s
}

// Events returns the engine's notification channel. The channel is
// buffered and never blocks the engine; a slow consumer misses
// intermediate events, not final state, since all state is re-readable.
func (e *Engine) Events() <-chan Event { return e.events }

// Close stops background work, persists a final snapshot, and closes
// the history database.
func (e *Engine) Close() error {
	e.cancel()
	e.wg.Wait()

	e.persistMu.Lock()
	err := e.state.Save(e.snapshot())
	e.persistMu.Unlock()
	if e.history != nil {
		if cerr := e.history.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// --- slot operations -------------------------------------------------

// CreateSlot adds a new empty timer slot.
func (e *Engine) CreateSlot() model.TimerSlot {
	st := e.registry.Create()
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged, SlotID: st.ID})
	return st
}

// RemoveSlot deletes a stopped slot.
func (e *Engine) RemoveSlot(id string) error {
	if err := e.registry.Remove(id); err != nil {
		return err
	}
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged, SlotID: id})
	return nil
}

// AssignIssue binds a slot to an issue key and refreshes the display
// cache in the background.
func (e *Engine) AssignIssue(id, issueKey string) error {
	if err := e.registry.AssignIssue(id, issueKey); err != nil {
		return err
	}
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged, SlotID: id})

	if client := e.syncClient(); client != nil && issueKey != "" {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.refreshIssueDetails(client, id, issueKey)
		}()
	}
	return nil
}

func (e *Engine) refreshIssueDetails(client *jira.SyncClient, slotID, issueKey string) {
	ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
	defer cancel()

	detail, err := client.FetchIssue(ctx, issueKey)
	if err != nil {
		e.emit(Event{Kind: EventIssueResolved, SlotID: slotID, Err: err})
		return
	}

	if err := e.registry.SetIssueDetails(slotID, issueKey, detail.Summary, detail.Description); err != nil {
		return
	}
	e.persist()
	e.emit(Event{Kind: EventIssueResolved, SlotID: slotID})
}

// Start begins counting on a slot. In exclusive mode it fails with
// registry.ErrAlreadyRunning while another slot runs; use Switch for
// one-click switching. Optionally kicks off a best-effort transition of
// the issue to In Progress.
func (e *Engine) Start(id string) error {
	if err := e.registry.Start(id); err != nil {
		return err
	}
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged, SlotID: id})

	if e.cfg.Timers.TransitionOnStart {
		if client := e.syncClient(); client != nil {
			if slot, err := e.registry.Get(id); err == nil && slot.IssueKey != "" {
				e.wg.Add(1)
				go func() {
					defer e.wg.Done()
					e.transitionInProgress(client, id, slot.IssueKey)
				}()
			}
		}
	}
	return nil
}

func (e *Engine) transitionInProgress(client *jira.SyncClient, slotID, issueKey string) {
	ctx, cancel := context.WithTimeout(e.ctx, fetchTimeout)
	defer cancel()

	if err := client.TransitionToInProgress(ctx, issueKey); err != nil {
		// Best-effort only; the local start already happened and stays.
		e.emit(Event{Kind: EventTransitionFailed, SlotID: slotID, Err: err})
	}
}

// Switch stops every running slot and starts the given one, preserving
// all elapsed time. In free-running mode it is equivalent to Start.
func (e *Engine) Switch(id string) error {
	if e.cfg.Timers.Exclusive {
		e.registry.StopAll()
	}
	return e.Start(id)
}

// Stop halts a slot, folding the elapsed interval into its stored
// duration. Idempotent.
func (e *Engine) Stop(id string) error {
	if err := e.registry.Stop(id); err != nil {
		return err
	}
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged, SlotID: id})
	return nil
}

// PauseAll stops every running slot and returns their ids.
func (e *Engine) PauseAll() []string {
	stopped := e.registry.StopAll()
	if len(stopped) > 0 {
		e.persist()
		e.emit(Event{Kind: EventSlotsChanged})
	}
	return stopped
}

// EditDuration applies a manual duration correction.
func (e *Engine) EditDuration(id string, seconds int64) error {
	if err := e.registry.EditDuration(id, seconds); err != nil {
		return err
	}
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged, SlotID: id})
	return nil
}

// SetComment updates a slot's draft worklog comment.
func (e *Engine) SetComment(id, comment string) error {
	if err := e.registry.SetComment(id, comment); err != nil {
		return err
	}
	e.persist()
	return nil
}

// Reset zeroes a slot's accumulated time.
func (e *Engine) Reset(id string) error {
	if err := e.registry.Reset(id); err != nil {
		return err
	}
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged, SlotID: id})
	return nil
}

// ResetAll zeroes every slot, stopping running ones first.
func (e *Engine) ResetAll() {
	for _, slot := range e.registry.Snapshot() {
		_ = e.registry.Reset(slot.ID)
	}
	e.persist()
	e.emit(Event{Kind: EventSlotsChanged})
}

// Slots returns the current slot set in creation order.
func (e *Engine) Slots() []model.TimerSlot { return e.registry.Snapshot() }

// Slot returns one slot's stored state.
func (e *Engine) Slot(id string) (model.TimerSlot, error) { return e.registry.Get(id) }

// LiveSeconds returns a slot's total including the running interval.
func (e *Engine) LiveSeconds(id string) (int64, error) { return e.registry.Elapsed(id) }

// AutoPaused returns the slots stopped at the last idle boundary.
func (e *Engine) AutoPaused() []string {
	if e.monitor == nil {
		return nil
	}
	return e.monitor.AutoPaused()
}

// --- drafts and submission -------------------------------------------

// CreateDraft stops the slot (so the folded duration is exact) and
// creates a pending worklog draft. Seconds <= 0 drafts the slot's full
// stored duration.
func (e *Engine) CreateDraft(
	slotID string,
	seconds int64,
	comment string,
	estimate model.EstimateAdjustment,
) (model.WorklogDraft, error) {
	if err := e.registry.Stop(slotID); err != nil {
		return model.WorklogDraft{}, err
	}
	slot, err := e.registry.Get(slotID)
	if err != nil {
		return model.WorklogDraft{}, err
	}
	if seconds <= 0 {
		seconds = slot.Seconds
	}

	draft, err := e.coord.Create(slot, seconds, comment, estimate)
	if err != nil {
		return model.WorklogDraft{}, err
	}
	e.emit(Event{Kind: EventDraftsChanged, DraftID: draft.ID})
	e.emit(Event{Kind: EventSlotsChanged, SlotID: slotID})
	return draft, nil
}

// Drafts returns the pending drafts, oldest first.
func (e *Engine) Drafts() []model.WorklogDraft { return e.coord.Drafts() }

// DraftStatus reports a draft's lifecycle state.
func (e *Engine) DraftStatus(id string) (submit.State, error) { return e.coord.Status(id) }

// Submit posts one draft, blocking until it is confirmed or failed.
func (e *Engine) Submit(ctx context.Context, draftID string) error {
	if e.syncClient() == nil {
		return ErrNotConfigured
	}
	return e.coord.Submit(ctx, draftID)
}

// SubmitAll posts every pending draft concurrently.
func (e *Engine) SubmitAll(ctx context.Context) error {
	if e.syncClient() == nil {
		return ErrNotConfigured
	}
	return e.coord.SubmitAll(ctx)
}

// DiscardDraft removes a pending draft without submitting it.
func (e *Engine) DiscardDraft(id string) error {
	if err := e.coord.Discard(id); err != nil {
		return err
	}
	e.emit(Event{Kind: EventDraftsChanged, DraftID: id})
	return nil
}

func (e *Engine) onSubmitNotification(n submit.Notification) {
	e.emit(Event{Kind: EventSubmitState, DraftID: n.DraftID, State: n.State, Err: n.Err})
	if n.State == submit.StateConfirmed {
		e.emit(Event{Kind: EventSlotsChanged})
		e.emit(Event{Kind: EventDraftsChanged, DraftID: n.DraftID})
	}
}

// --- remote lookups ---------------------------------------------------

// SetCredentials swaps the Jira client after a settings change. The
// credentials object is passed in explicitly; the engine never reads
// ambient global state.
func (e *Engine) SetCredentials(creds model.Credentials) {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()
	if creds.Configured() {
		e.client = jira.NewSyncClient(creds)
	} else {
		e.client = nil
	}
}

func (e *Engine) syncClient() *jira.SyncClient {
	e.clientMu.RLock()
	defer e.clientMu.RUnlock()
	return e.client
}

// ResolveFilter resolves a filter reference into an issue list and
// refreshes the advisory filter cache.
func (e *Engine) ResolveFilter(ctx context.Context, query string) ([]jira.IssueRef, error) {
	client := e.syncClient()
	if client == nil {
		return nil, ErrNotConfigured
	}

	refs, err := client.ResolveFilter(ctx, query)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, ref.Key)
	}
	e.filterMu.Lock()
	e.filterCache[query] = model.FilterCacheEntry{Keys: keys, FetchedAt: e.clk.Now()}
	e.filterMu.Unlock()
	e.persist()

	return refs, nil
}

// ListFavouriteFilters returns the user's starred Jira filters.
func (e *Engine) ListFavouriteFilters(ctx context.Context) ([]jira.Filter, error) {
	client := e.syncClient()
	if client == nil {
		return nil, ErrNotConfigured
	}
	return client.ListFavouriteFilters(ctx)
}

// TestConnection verifies credentials against the remote, returning the
// account display name.
func (e *Engine) TestConnection(ctx context.Context) (string, error) {
	client := e.syncClient()
	if client == nil {
		return "", ErrNotConfigured
	}
	return client.TestConnection(ctx)
}

// --- internals --------------------------------------------------------

func (e *Engine) forwardIdleEvents(idleEvents <-chan idle.Event) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-idleEvents:
			if !ok {
				return
			}
			if ev.Idle {
				// The pause already happened in the registry; persist it
				// so a crash during the idle period loses nothing.
				e.persist()
				e.emit(Event{Kind: EventIdleStarted, Paused: ev.Paused})
			} else {
				e.emit(Event{Kind: EventIdleEnded})
			}
		}
	}
}

// snapshot assembles the current persisted state.
func (e *Engine) snapshot() *model.PersistedState {
	e.filterMu.Lock()
	cache := make(map[string]model.FilterCacheEntry, len(e.filterCache))
	for k, v := range e.filterCache {
		cache[k] = v
	}
	e.filterMu.Unlock()

	return &model.PersistedState{
		Slots:       e.registry.Snapshot(),
		Drafts:      e.coord.Drafts(),
		FilterCache: cache,
	}
}

// persist writes the snapshot. A failed write is surfaced as an event,
// not an error: in-memory state stays the source of truth and the next
// mutation retries.
func (e *Engine) persist() {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if err := e.state.Save(e.snapshot()); err != nil {
		e.emit(Event{Kind: EventPersistFailed, Err: err})
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// poster adapts the engine's swappable client to the coordinator's
// Poster interface, resolving the current client per call so a token
// rotation mid-session applies to the next submission.
func (e *Engine) poster() submit.Poster {
	return posterFunc{engine: e}
}

type posterFunc struct {
	engine *Engine
}

func (p posterFunc) PostWorklog(ctx context.Context, req jira.WorklogRequest) (string, error) {
	client := p.engine.syncClient()
	if client == nil {
		return "", ErrNotConfigured
	}
	return client.PostWorklog(ctx, req)
}

func (p posterFunc) UpdateRemainingEstimate(ctx context.Context, key string, seconds int64) error {
	client := p.engine.syncClient()
	if client == nil {
		return ErrNotConfigured
	}
	return client.UpdateRemainingEstimate(ctx, key, seconds)
}
