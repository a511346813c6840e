// Package submit orchestrates flushing accumulated time through the Jira
// sync client. Each pending draft is an independent state machine
// (Draft -> Submitting -> Confirmed | Failed); different drafts may
// submit concurrently, but at most one submission per draft is ever in
// flight. The coordinator owns retry and de-duplication because the
// remote API is not idempotent: posting the same worklog twice creates
// two entries.
package submit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/jirawatch/internal/clock"
	"github.com/nhle/jirawatch/internal/history"
	"github.com/nhle/jirawatch/internal/jira"
	"github.com/nhle/jirawatch/internal/model"
)

var (
	// ErrDraftNotFound is returned when the draft id is unknown.
	ErrDraftNotFound = errors.New("submit: draft not found")

	// ErrAlreadySubmitting is returned when a submission for the same
	// draft is already in flight.
	ErrAlreadySubmitting = errors.New("submit: draft is already submitting")

	// ErrInvalidDraft is returned by Create for a missing issue key or
	// non-positive duration.
	ErrInvalidDraft = errors.New("submit: invalid draft")
)

// State is the lifecycle position of a draft.
type State int

const (
	StateDraft State = iota
	StateSubmitting
	StateConfirmed
	StateFailed
)

// String renders the state for logs and the pending panel.
func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Poster is the slice of the sync client the coordinator calls.
type Poster interface {
	PostWorklog(ctx context.Context, req jira.WorklogRequest) (string, error)
	UpdateRemainingEstimate(ctx context.Context, key string, seconds int64) error
}

// Deductor subtracts confirmed time from the owning timer slot.
type Deductor interface {
	Deduct(slotID string, seconds int64) error
}

// Recorder appends confirmed submissions to the audit trail.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Notification reports a draft state change to the engine.
type Notification struct {
	DraftID string
	State   State
	Err     error
}

// Options configures a Coordinator.
type Options struct {
	Poster  Poster
	Deduct  Deductor
	History Recorder // optional

	// Persist is invoked after every draft mutation so the snapshot on
	// disk tracks the draft set. Optional.
	Persist func()

	// Notify receives state transitions. Optional.
	Notify func(Notification)

	// MaxAttempts bounds rate-limited retries; minimum 1.
	MaxAttempts int

	// InitialBackoff seeds the exponential retry delay.
	InitialBackoff time.Duration

	Clock clock.Clock
}

// Coordinator owns the pending draft set and its submission lifecycle.
type Coordinator struct {
	mu     sync.Mutex
	drafts map[string]*model.WorklogDraft
	states map[string]State

	poster  Poster
	deduct  Deductor
	history Recorder
	persist func()
	notify  func(Notification)

	maxAttempts    int
	initialBackoff time.Duration
	clk            clock.Clock
}

// New creates a Coordinator with no pending drafts.
func New(opts Options) *Coordinator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 2 * time.Second
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Coordinator{
		drafts:         make(map[string]*model.WorklogDraft),
		states:         make(map[string]State),
		poster:         opts.Poster,
		deduct:         opts.Deduct,
		history:        opts.History,
		persist:        opts.Persist,
		notify:         opts.Notify,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		clk:            clk,
	}
}

// Restore loads persisted drafts at startup. Drafts that recorded a
// failure resume in Failed so the pending panel shows why.
func (c *Coordinator) Restore(drafts []model.WorklogDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range drafts {
		draft := d
		if draft.ID == "" {
			draft.ID = uuid.New().String()
		}
		c.drafts[draft.ID] = &draft
		if draft.LastError != "" {
			c.states[draft.ID] = StateFailed
		} else {
			c.states[draft.ID] = StateDraft
		}
	}
}

// Create adds a new pending draft for the given slot.
func (c *Coordinator) Create(
	slot model.TimerSlot,
	seconds int64,
	comment string,
	estimate model.EstimateAdjustment,
) (model.WorklogDraft, error) {
	if slot.IssueKey == "" {
		return model.WorklogDraft{}, fmt.Errorf("%w: slot has no issue assigned", ErrInvalidDraft)
	}
	if seconds <= 0 {
		return model.WorklogDraft{}, fmt.Errorf("%w: duration must be positive", ErrInvalidDraft)
	}

	draft := model.WorklogDraft{
		ID:        uuid.New().String(),
		SlotID:    slot.ID,
		IssueKey:  slot.IssueKey,
		Seconds:   seconds,
		Comment:   comment,
		Estimate:  estimate,
		CreatedAt: c.clk.Now(),
	}

	c.mu.Lock()
	c.drafts[draft.ID] = &draft
	c.states[draft.ID] = StateDraft
	c.mu.Unlock()

	c.doPersist()
	return draft, nil
}

// Discard removes a draft without submitting. Rejected while a
// submission is in flight.
func (c *Coordinator) Discard(id string) error {
	c.mu.Lock()
	if _, ok := c.drafts[id]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if c.states[id] == StateSubmitting {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadySubmitting, id)
	}
	delete(c.drafts, id)
	delete(c.states, id)
	c.mu.Unlock()

	c.doPersist()
	return nil
}

// Drafts returns copies of all pending drafts, oldest first.
func (c *Coordinator) Drafts() []model.WorklogDraft {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.WorklogDraft, 0, len(c.drafts))
	for _, d := range c.drafts {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Status reports a draft's current lifecycle state.
func (c *Coordinator) Status(id string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[id]
	if !ok {
		return StateDraft, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return st, nil
}

// Submit posts one draft. It blocks until the draft is Confirmed,
// Failed, or the context is cancelled; callers wanting asynchrony run it
// on their own goroutine. A second Submit for the same draft while one
// is in flight fails immediately with ErrAlreadySubmitting.
func (c *Coordinator) Submit(ctx context.Context, id string) error {
	c.mu.Lock()
	draft, ok := c.drafts[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if c.states[id] == StateSubmitting {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadySubmitting, id)
	}
	c.states[id] = StateSubmitting
	draft.LastError = ""
	req := jira.WorklogRequest{
		IssueKey: draft.IssueKey,
		Seconds:  draft.Seconds,
		Comment:  draft.Comment,
		Started:  c.clk.Now(),
		Estimate: draft.Estimate,
	}
	slotID := draft.SlotID
	estimate := draft.Estimate
	c.mu.Unlock()

	c.doNotify(Notification{DraftID: id, State: StateSubmitting})

	worklogID, err := c.postWithRetry(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-flight: the remote call may still have
			// succeeded before cancellation was observed, so the draft
			// returns to Draft rather than Confirmed. Known
			// at-least-once risk; the draft is never silently dropped.
			c.setState(id, StateDraft, nil)
			return ctx.Err()
		}
		c.mu.Lock()
		if d, ok := c.drafts[id]; ok {
			d.LastError = err.Error()
		}
		c.states[id] = StateFailed
		c.mu.Unlock()
		c.doPersist()
		c.doNotify(Notification{DraftID: id, State: StateFailed, Err: err})
		return err
	}

	// Confirmed: reduce the slot by exactly the submitted amount. Time
	// accrued since the draft was created stays on the slot.
	if c.deduct != nil {
		// The slot may have been removed while the post was in flight;
		// the worklog is durable at Jira either way.
		_ = c.deduct.Deduct(slotID, req.Seconds)
	}

	if estimate.Mode == model.EstimateManual {
		// Best-effort: the worklog is already durable at Jira, so an
		// estimate patch failure must not fail the submission.
		if eerr := c.poster.UpdateRemainingEstimate(ctx, req.IssueKey, estimate.RemainingSeconds); eerr != nil {
			c.doNotify(Notification{DraftID: id, State: StateConfirmed, Err: eerr})
		}
	}

	if c.history != nil {
		_ = c.history.Record(ctx, history.Entry{
			IssueKey:    req.IssueKey,
			Seconds:     req.Seconds,
			Comment:     req.Comment,
			WorklogID:   worklogID,
			SubmittedAt: req.Started,
		})
	}

	c.mu.Lock()
	delete(c.drafts, id)
	c.states[id] = StateConfirmed
	c.mu.Unlock()

	c.doPersist()
	c.doNotify(Notification{DraftID: id, State: StateConfirmed})
	return nil
}

// SubmitAll posts every pending draft concurrently, one goroutine per
// draft. Every draft submits with the caller's context: one draft's
// failure never aborts its siblings, since a post cancelled mid-flight
// leaves the remote outcome unknown. Drafts already in flight are
// skipped. The first failure is returned; failed drafts stay pending
// either way.
func (c *Coordinator) SubmitAll(ctx context.Context) error {
	drafts := c.Drafts()

	var g errgroup.Group
	for _, d := range drafts {
		id := d.ID
		g.Go(func() error {
			err := c.Submit(ctx, id)
			if errors.Is(err, ErrAlreadySubmitting) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// postWithRetry retries rate-limited posts with exponential backoff,
// honoring the server's Retry-After hint when it is longer. Auth and
// validation failures are surfaced immediately: they need user action,
// and retrying a non-idempotent post on an ambiguous error would risk
// duplicate worklogs.
func (c *Coordinator) postWithRetry(ctx context.Context, req jira.WorklogRequest) (string, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initialBackoff
	expo.MaxInterval = 30 * time.Second
	expo.Reset()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		worklogID, err := c.poster.PostWorklog(ctx, req)
		if err == nil {
			return worklogID, nil
		}
		lastErr = err

		if !errors.Is(err, jira.ErrRateLimited) {
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}

		wait := expo.NextBackOff()
		if hint := jira.RetryAfterHint(err); hint > wait {
			wait = hint
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	return "", fmt.Errorf("giving up after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Coordinator) setState(id string, st State, err error) {
	c.mu.Lock()
	if _, ok := c.drafts[id]; ok {
		c.states[id] = st
	}
	c.mu.Unlock()
	c.doNotify(Notification{DraftID: id, State: st, Err: err})
}

func (c *Coordinator) doPersist() {
	if c.persist != nil {
		c.persist()
	}
}

func (c *Coordinator) doNotify(n Notification) {
	if c.notify != nil {
		c.notify(n)
	}
}
