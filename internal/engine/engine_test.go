package engine_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nhle/jirawatch/internal/engine"
	"github.com/nhle/jirawatch/internal/idle"
	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/statefile"
	"github.com/nhle/jirawatch/tests/testutil"
)

func newTestEngine(t *testing.T, store *statefile.Store, clk *testutil.FakeClock, cfg *model.AppConfig) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Options{
		Config: cfg,
		State:  store,
		Clock:  clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func freeRunning() *model.AppConfig {
	return &model.AppConfig{
		Timers: model.TimerConfig{Exclusive: false, PauseOnLock: true},
		Submit: model.SubmitConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	}
}

func TestMutationsPersistImmediately(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	e := newTestEngine(t, store, clk, freeRunning())

	slot := e.CreateSlot()
	if err := e.AssignIssue(slot.ID, "ABC-12"); err != nil {
		t.Fatalf("AssignIssue: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Slots) != 1 {
		t.Fatalf("got %d persisted slots, want 1", len(loaded.Slots))
	}
	if loaded.Slots[0].IssueKey != "ABC-12" {
		t.Errorf("persisted issue key = %q, want ABC-12", loaded.Slots[0].IssueKey)
	}
}

func TestRestartRebasesRunningSlot(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))

	e := newTestEngine(t, store, clk, freeRunning())
	slot := e.CreateSlot()
	if err := e.AssignIssue(slot.ID, "ABC-1"); err != nil {
		t.Fatalf("AssignIssue: %v", err)
	}
	if err := e.Start(slot.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Advance(151 * time.Second)
	if err := e.Stop(slot.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Start(slot.ID); err != nil {
		t.Fatalf("restart: %v", err)
	}
	clk.Advance(40 * time.Second)
	// The last persisted snapshot was at restart time, 40 seconds ago.
	if err := e.SetComment(slot.ID, "before the crash"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}

	// Simulate a long outage before the next launch.
	clk.Advance(8 * time.Hour)

	e2 := newTestEngine(t, store, clk, freeRunning())
	slots := e2.Slots()
	if len(slots) != 1 {
		t.Fatalf("got %d slots after restart, want 1", len(slots))
	}
	st := slots[0]
	if !st.Running {
		t.Fatal("slot should resume running")
	}
	if st.Seconds != 151 {
		t.Errorf("stored seconds = %d, want 151", st.Seconds)
	}

	// Downtime is never credited: counting resumes from load time.
	clk.Advance(9 * time.Second)
	live, err := e2.LiveSeconds(st.ID)
	if err != nil {
		t.Fatalf("LiveSeconds: %v", err)
	}
	if live != 160 {
		t.Errorf("live seconds = %d, want 160", live)
	}
}

func TestCreateDraftStopsSlotFirst(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	e := newTestEngine(t, store, clk, freeRunning())

	slot := e.CreateSlot()
	if err := e.AssignIssue(slot.ID, "ABC-7"); err != nil {
		t.Fatalf("AssignIssue: %v", err)
	}
	if err := e.Start(slot.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Advance(30 * time.Minute)

	draft, err := e.CreateDraft(slot.ID, 0, "pairing session", model.EstimateAdjustment{Mode: model.EstimateAuto})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if draft.Seconds != 1800 {
		t.Errorf("draft seconds = %d, want 1800", draft.Seconds)
	}
	if draft.IssueKey != "ABC-7" {
		t.Errorf("draft issue = %q, want ABC-7", draft.IssueKey)
	}

	if st := e.Slots()[0]; st.Running {
		t.Error("slot should be stopped by drafting")
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Drafts) != 1 {
		t.Fatalf("got %d persisted drafts, want 1", len(loaded.Drafts))
	}
}

func TestCreateDraftPartialAmount(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	e := newTestEngine(t, store, clk, freeRunning())

	slot := e.CreateSlot()
	if err := e.AssignIssue(slot.ID, "ABC-7"); err != nil {
		t.Fatalf("AssignIssue: %v", err)
	}
	if err := e.EditDuration(slot.ID, 9060); err != nil {
		t.Fatalf("EditDuration: %v", err)
	}

	draft, err := e.CreateDraft(slot.ID, 1800, "", model.EstimateAdjustment{})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if draft.Seconds != 1800 {
		t.Errorf("draft seconds = %d, want 1800", draft.Seconds)
	}
	// The slot keeps its full duration until the draft is confirmed.
	if got := e.Slots()[0].Seconds; got != 9060 {
		t.Errorf("slot seconds = %d, want 9060", got)
	}
}

func TestSubmitWithoutCredentials(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	e := newTestEngine(t, store, clk, freeRunning())

	slot := e.CreateSlot()
	if err := e.AssignIssue(slot.ID, "ABC-7"); err != nil {
		t.Fatalf("AssignIssue: %v", err)
	}
	if err := e.EditDuration(slot.ID, 60); err != nil {
		t.Fatalf("EditDuration: %v", err)
	}
	draft, err := e.CreateDraft(slot.ID, 0, "", model.EstimateAdjustment{})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	if err := e.Submit(context.Background(), draft.ID); !errors.Is(err, engine.ErrNotConfigured) {
		t.Errorf("Submit err = %v, want ErrNotConfigured", err)
	}
	if _, err := e.TestConnection(context.Background()); !errors.Is(err, engine.ErrNotConfigured) {
		t.Errorf("TestConnection err = %v, want ErrNotConfigured", err)
	}
}

func TestConfirmedDraftNeverResurrectedByConcurrentSaves(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/issue/ABC-9/worklog", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1009"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	e := newTestEngine(t, store, clk, freeRunning())
	e.SetCredentials(model.Credentials{
		BaseURL:  server.URL,
		Email:    "dev@example.com",
		APIToken: "token",
	})

	slot := e.CreateSlot()
	if err := e.AssignIssue(slot.ID, "ABC-9"); err != nil {
		t.Fatalf("AssignIssue: %v", err)
	}
	if err := e.EditDuration(slot.ID, 600); err != nil {
		t.Fatalf("EditDuration: %v", err)
	}
	draft, err := e.CreateDraft(slot.ID, 0, "", model.EstimateAdjustment{Mode: model.EstimateAuto})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	// Hammer saves from other goroutines while the submission confirms.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = e.SetComment(slot.ID, "racing save")
				}
			}
		}()
	}

	if err := e.Submit(context.Background(), draft.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	close(done)
	wg.Wait()

	// Saves racing the confirmation may land after it, but every save is
	// a full snapshot taken under the same lock as the write, so the
	// confirmed draft cannot come back from disk and the deduction holds.
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Drafts) != 0 {
		t.Errorf("%d drafts on disk after confirmation, want 0", len(loaded.Drafts))
	}
	if loaded.Slots[0].Seconds != 0 {
		t.Errorf("persisted slot seconds = %d after deduction, want 0", loaded.Slots[0].Seconds)
	}
}

func TestSwitchStopsOtherSlots(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	cfg := freeRunning()
	cfg.Timers.Exclusive = true
	e := newTestEngine(t, store, clk, cfg)

	a := e.CreateSlot()
	b := e.CreateSlot()
	if err := e.Start(a.ID); err != nil {
		t.Fatalf("Start a: %v", err)
	}
	clk.Advance(100 * time.Second)

	if err := e.Start(b.ID); err == nil {
		t.Fatal("Start b should fail in exclusive mode")
	}
	if err := e.Switch(b.ID); err != nil {
		t.Fatalf("Switch: %v", err)
	}

	slots := e.Slots()
	if slots[0].Running || !slots[1].Running {
		t.Errorf("running flags = %v/%v, want false/true", slots[0].Running, slots[1].Running)
	}
	if slots[0].Seconds != 100 {
		t.Errorf("first slot seconds = %d, want 100", slots[0].Seconds)
	}
}

func TestPauseAllAndResetAll(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	e := newTestEngine(t, store, clk, freeRunning())

	a := e.CreateSlot()
	b := e.CreateSlot()
	if err := e.Start(a.ID); err != nil {
		t.Fatalf("Start a: %v", err)
	}
	if err := e.Start(b.ID); err != nil {
		t.Fatalf("Start b: %v", err)
	}
	clk.Advance(60 * time.Second)

	stopped := e.PauseAll()
	if len(stopped) != 2 {
		t.Fatalf("paused %d slots, want 2", len(stopped))
	}
	for _, slot := range e.Slots() {
		if slot.Running {
			t.Errorf("slot %s still running", slot.ID)
		}
		if slot.Seconds != 60 {
			t.Errorf("slot %s seconds = %d, want 60", slot.ID, slot.Seconds)
		}
	}

	e.ResetAll()
	for _, slot := range e.Slots() {
		if slot.Seconds != 0 {
			t.Errorf("slot %s seconds = %d after reset, want 0", slot.ID, slot.Seconds)
		}
	}
}

func TestIdlePausePersistsAndEmits(t *testing.T) {
	store := testutil.NewStateStore(t)
	clk := testutil.NewFakeClock(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	signals := make(chan idle.Signal)

	e, err := engine.New(engine.Options{
		Config:      freeRunning(),
		State:       store,
		Clock:       clk,
		IdleSignals: signals,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	slot := e.CreateSlot()
	if err := e.Start(slot.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Advance(200 * time.Second)

	drainEvents(e)
	signals <- idle.SignalLock

	ev := waitForEvent(t, e, engine.EventIdleStarted)
	if len(ev.Paused) != 1 || ev.Paused[0] != slot.ID {
		t.Errorf("paused = %v, want [%s]", ev.Paused, slot.ID)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Slots[0].Running {
		t.Error("persisted slot should be stopped after idle pause")
	}
	if loaded.Slots[0].Seconds != 200 {
		t.Errorf("persisted seconds = %d, want 200", loaded.Slots[0].Seconds)
	}

	signals <- idle.SignalUnlock
	waitForEvent(t, e, engine.EventIdleEnded)

	// No slot restarts on unlock.
	if e.Slots()[0].Running {
		t.Error("slot should stay paused after unlock")
	}
	if got := e.AutoPaused(); len(got) != 1 || got[0] != slot.ID {
		t.Errorf("AutoPaused = %v, want [%s]", got, slot.ID)
	}
}

func drainEvents(e *engine.Engine) {
	for {
		select {
		case <-e.Events():
		default:
			return
		}
	}
}

func waitForEvent(t *testing.T, e *engine.Engine, kind engine.EventKind) engine.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}
