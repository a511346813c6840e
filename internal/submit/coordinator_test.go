package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nhle/jirawatch/internal/history"
	"github.com/nhle/jirawatch/internal/jira"
	"github.com/nhle/jirawatch/internal/model"
)

// fakePoster scripts PostWorklog responses per attempt.
type fakePoster struct {
	mu        sync.Mutex
	responses []error // consumed per call; nil means success
	calls     int
	block     chan struct{} // when set, PostWorklog waits on it

	estimateCalls   int
	estimateSeconds int64
}

func (f *fakePoster) PostWorklog(ctx context.Context, req jira.WorklogRequest) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.responses) > 0 {
		err := f.responses[0]
		f.responses = f.responses[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("wl-%d", f.calls), nil
}

func (f *fakePoster) UpdateRemainingEstimate(ctx context.Context, key string, seconds int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimateCalls++
	f.estimateSeconds = seconds
	return nil
}

// fakeDeductor records deductions.
type fakeDeductor struct {
	mu    sync.Mutex
	byID  map[string]int64
	calls int
}

func (f *fakeDeductor) Deduct(slotID string, seconds int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID == nil {
		f.byID = make(map[string]int64)
	}
	f.byID[slotID] += seconds
	f.calls++
	return nil
}

// fakeRecorder captures history entries.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (f *fakeRecorder) Record(ctx context.Context, e history.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func newTestCoordinator(poster *fakePoster) (*Coordinator, *fakeDeductor, *fakeRecorder) {
	deduct := &fakeDeductor{}
	rec := &fakeRecorder{}
	c := New(Options{
		Poster:         poster,
		Deduct:         deduct,
		History:        rec,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})
	return c, deduct, rec
}

func testSlot() model.TimerSlot {
	return model.TimerSlot{ID: "slot-1", IssueKey: "ABC-12", Seconds: 3600}
}

func TestSubmitConfirmedDeductsExactly(t *testing.T) {
	poster := &fakePoster{}
	c, deduct, rec := newTestCoordinator(poster)

	// Partial submission: the user edited the draft down to 30 minutes.
	draft, err := c.Create(testSlot(), 1800, "worked on login", model.EstimateAdjustment{Mode: model.EstimateAuto})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := c.Submit(context.Background(), draft.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := deduct.byID["slot-1"]; got != 1800 {
		t.Errorf("deducted %d, want exactly 1800", got)
	}
	if len(c.Drafts()) != 0 {
		t.Error("confirmed draft still pending")
	}
	if st, _ := c.Status(draft.ID); st != StateConfirmed {
		t.Errorf("state = %s, want confirmed", st)
	}
	if len(rec.entries) != 1 || rec.entries[0].WorklogID != "wl-1" {
		t.Errorf("history entries = %+v", rec.entries)
	}
}

func TestSubmitFailureKeepsDraftAndDuration(t *testing.T) {
	poster := &fakePoster{responses: []error{jira.ErrValidation}}
	c, deduct, _ := newTestCoordinator(poster)

	draft, _ := c.Create(testSlot(), 1800, "", model.EstimateAdjustment{Mode: model.EstimateLeave})

	err := c.Submit(context.Background(), draft.ID)
	if !errors.Is(err, jira.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}

	if deduct.calls != 0 {
		t.Error("failed submission deducted time")
	}
	drafts := c.Drafts()
	if len(drafts) != 1 {
		t.Fatal("failed draft was dropped")
	}
	if drafts[0].LastError == "" {
		t.Error("failure reason not recorded on draft")
	}
	if st, _ := c.Status(draft.ID); st != StateFailed {
		t.Errorf("state = %s, want failed", st)
	}
	// Validation errors are not retried.
	if poster.calls != 1 {
		t.Errorf("poster called %d times, want 1", poster.calls)
	}
}

func TestSubmitAuthErrorNotRetried(t *testing.T) {
	poster := &fakePoster{responses: []error{jira.ErrAuth}}
	c, _, _ := newTestCoordinator(poster)

	draft, _ := c.Create(testSlot(), 600, "", model.EstimateAdjustment{Mode: model.EstimateAuto})

	if err := c.Submit(context.Background(), draft.ID); !errors.Is(err, jira.ErrAuth) {
		t.Fatalf("got %v, want ErrAuth", err)
	}
	if poster.calls != 1 {
		t.Errorf("poster called %d times, want 1", poster.calls)
	}
}

func TestSubmitRateLimitedRetriesThenSucceeds(t *testing.T) {
	poster := &fakePoster{responses: []error{
		&jira.RateLimitError{},
		nil,
	}}
	c, deduct, _ := newTestCoordinator(poster)

	draft, _ := c.Create(testSlot(), 600, "", model.EstimateAdjustment{Mode: model.EstimateAuto})

	if err := c.Submit(context.Background(), draft.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if poster.calls != 2 {
		t.Errorf("poster called %d times, want 2", poster.calls)
	}
	if deduct.byID["slot-1"] != 600 {
		t.Errorf("deducted %d, want 600", deduct.byID["slot-1"])
	}
}

func TestSubmitRateLimitedExhaustsAttempts(t *testing.T) {
	poster := &fakePoster{responses: []error{
		&jira.RateLimitError{},
		&jira.RateLimitError{},
		&jira.RateLimitError{},
		nil, // would succeed, but the budget is 3
	}}
	c, _, _ := newTestCoordinator(poster)

	draft, _ := c.Create(testSlot(), 600, "", model.EstimateAdjustment{Mode: model.EstimateAuto})

	err := c.Submit(context.Background(), draft.ID)
	if !errors.Is(err, jira.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	if poster.calls != 3 {
		t.Errorf("poster called %d times, want 3", poster.calls)
	}
	if st, _ := c.Status(draft.ID); st != StateFailed {
		t.Errorf("state = %s, want failed", st)
	}
}

func TestConcurrentSubmitSameDraft(t *testing.T) {
	poster := &fakePoster{block: make(chan struct{})}
	c, _, _ := newTestCoordinator(poster)

	draft, _ := c.Create(testSlot(), 600, "", model.EstimateAdjustment{Mode: model.EstimateAuto})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- c.Submit(context.Background(), draft.ID)
		}()
	}

	// Exactly one call must be rejected while the other is in flight.
	var rejected error
	select {
	case rejected = <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("no submission was rejected")
	}
	if !errors.Is(rejected, ErrAlreadySubmitting) {
		t.Fatalf("got %v, want ErrAlreadySubmitting", rejected)
	}

	close(poster.block)
	if err := <-errs; err != nil {
		t.Fatalf("winning submission failed: %v", err)
	}
	if poster.calls != 1 {
		t.Errorf("poster called %d times, want 1", poster.calls)
	}
}

func TestCancelledSubmitReturnsToDraft(t *testing.T) {
	poster := &fakePoster{block: make(chan struct{})}
	c, deduct, _ := newTestCoordinator(poster)

	draft, _ := c.Create(testSlot(), 600, "", model.EstimateAdjustment{Mode: model.EstimateAuto})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx, draft.ID) }()

	// Let the submission get in flight, then close the dialog.
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	// Cancellation is not confirmation: the draft survives and no time
	// was deducted.
	if st, _ := c.Status(draft.ID); st != StateDraft {
		t.Errorf("state = %s, want draft", st)
	}
	if len(c.Drafts()) != 1 {
		t.Error("cancelled draft was dropped")
	}
	if deduct.calls != 0 {
		t.Error("cancelled submission deducted time")
	}
}

func TestManualEstimateAppliedAfterConfirm(t *testing.T) {
	poster := &fakePoster{}
	c, _, _ := newTestCoordinator(poster)

	draft, _ := c.Create(testSlot(), 600, "", model.EstimateAdjustment{
		Mode:             model.EstimateManual,
		RemainingSeconds: 9060,
	})

	if err := c.Submit(context.Background(), draft.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if poster.estimateCalls != 1 || poster.estimateSeconds != 9060 {
		t.Errorf("estimate update: calls=%d seconds=%d, want 1/9060",
			poster.estimateCalls, poster.estimateSeconds)
	}
}

func TestCreateValidation(t *testing.T) {
	c, _, _ := newTestCoordinator(&fakePoster{})

	if _, err := c.Create(model.TimerSlot{ID: "s"}, 600, "", model.EstimateAdjustment{}); !errors.Is(err, ErrInvalidDraft) {
		t.Errorf("no issue key: got %v, want ErrInvalidDraft", err)
	}
	if _, err := c.Create(testSlot(), 0, "", model.EstimateAdjustment{}); !errors.Is(err, ErrInvalidDraft) {
		t.Errorf("zero duration: got %v, want ErrInvalidDraft", err)
	}
}

func TestSubmitAllSkipsInFlight(t *testing.T) {
	poster := &fakePoster{}
	c, deduct, _ := newTestCoordinator(poster)

	slotA := model.TimerSlot{ID: "slot-a", IssueKey: "ABC-1", Seconds: 3600}
	slotB := model.TimerSlot{ID: "slot-b", IssueKey: "ABC-2", Seconds: 3600}
	c.Create(slotA, 600, "", model.EstimateAdjustment{Mode: model.EstimateAuto})
	c.Create(slotB, 900, "", model.EstimateAdjustment{Mode: model.EstimateAuto})

	if err := c.SubmitAll(context.Background()); err != nil {
		t.Fatalf("SubmitAll: %v", err)
	}
	if len(c.Drafts()) != 0 {
		t.Errorf("%d drafts left pending", len(c.Drafts()))
	}
	if deduct.byID["slot-a"] != 600 || deduct.byID["slot-b"] != 900 {
		t.Errorf("deductions = %v", deduct.byID)
	}
}

// splitPoster fails one issue key immediately and holds every other
// post until released.
type splitPoster struct {
	failKey string
	release chan struct{}
}

func (p *splitPoster) PostWorklog(ctx context.Context, req jira.WorklogRequest) (string, error) {
	if req.IssueKey == p.failKey {
		return "", jira.ErrValidation
	}
	select {
	case <-p.release:
		return "wl-ok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *splitPoster) UpdateRemainingEstimate(ctx context.Context, key string, seconds int64) error {
	return nil
}

func TestSubmitAllFailureDoesNotAbortSiblings(t *testing.T) {
	poster := &splitPoster{failKey: "ABC-BAD", release: make(chan struct{})}
	deduct := &fakeDeductor{}
	c := New(Options{
		Poster:         poster,
		Deduct:         deduct,
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	})

	bad, _ := c.Create(model.TimerSlot{ID: "slot-bad", IssueKey: "ABC-BAD", Seconds: 3600},
		600, "", model.EstimateAdjustment{Mode: model.EstimateAuto})
	good, _ := c.Create(model.TimerSlot{ID: "slot-good", IssueKey: "ABC-OK", Seconds: 3600},
		900, "", model.EstimateAdjustment{Mode: model.EstimateAuto})

	done := make(chan error, 1)
	go func() { done <- c.SubmitAll(context.Background()) }()

	// Let the failing draft finish before the healthy post is released;
	// its failure must not cancel the in-flight sibling.
	time.Sleep(20 * time.Millisecond)
	close(poster.release)

	if err := <-done; !errors.Is(err, jira.ErrValidation) {
		t.Fatalf("SubmitAll err = %v, want ErrValidation", err)
	}
	if st, _ := c.Status(good.ID); st != StateConfirmed {
		t.Errorf("healthy draft state = %s, want confirmed", st)
	}
	if st, _ := c.Status(bad.ID); st != StateFailed {
		t.Errorf("failing draft state = %s, want failed", st)
	}
	if deduct.byID["slot-good"] != 900 {
		t.Errorf("deducted %d from healthy slot, want 900", deduct.byID["slot-good"])
	}
}

func TestRestoreFailedDrafts(t *testing.T) {
	c, _, _ := newTestCoordinator(&fakePoster{})

	c.Restore([]model.WorklogDraft{
		{ID: "d1", SlotID: "s", IssueKey: "ABC-1", Seconds: 600},
		{ID: "d2", SlotID: "s", IssueKey: "ABC-2", Seconds: 600, LastError: "jira: rate limited"},
	})

	if st, _ := c.Status("d1"); st != StateDraft {
		t.Errorf("d1 state = %s, want draft", st)
	}
	if st, _ := c.Status("d2"); st != StateFailed {
		t.Errorf("d2 state = %s, want failed", st)
	}
	if len(c.Drafts()) != 2 {
		t.Errorf("restored %d drafts, want 2", len(c.Drafts()))
	}
}

func TestDiscard(t *testing.T) {
	c, _, _ := newTestCoordinator(&fakePoster{})

	draft, _ := c.Create(testSlot(), 600, "", model.EstimateAdjustment{})
	if err := c.Discard(draft.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(c.Drafts()) != 0 {
		t.Error("discarded draft still pending")
	}
	if err := c.Discard(draft.ID); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("second discard: got %v, want ErrDraftNotFound", err)
	}
}
