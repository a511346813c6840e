package idle

import (
	"context"
	"testing"
	"time"
)

// fakeStopper records StopAll calls and returns a fixed id list.
type fakeStopper struct {
	calls int
	ids   []string
}

func (f *fakeStopper) StopAll() []string {
	f.calls++
	return f.ids
}

func runMonitor(t *testing.T, stopper Stopper, pause bool) (chan Signal, chan Event, context.CancelFunc) {
	t.Helper()

	signals := make(chan Signal)
	events := make(chan Event, 8)
	m := NewMonitor(signals, events, stopper, pause)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return signals, events, cancel
}

func waitEvent(t *testing.T, events chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for idle event")
		return Event{}
	}
}

func TestLockPausesRunningSlots(t *testing.T) {
	stopper := &fakeStopper{ids: []string{"slot-1", "slot-2"}}
	signals, events, cancel := runMonitor(t, stopper, true)
	defer cancel()

	signals <- SignalLock

	ev := waitEvent(t, events)
	if !ev.Idle {
		t.Fatal("expected idle-started event")
	}
	if len(ev.Paused) != 2 {
		t.Errorf("paused = %v, want 2 slots", ev.Paused)
	}
	if stopper.calls != 1 {
		t.Errorf("StopAll called %d times, want 1", stopper.calls)
	}
}

func TestUnlockDoesNotResume(t *testing.T) {
	stopper := &fakeStopper{ids: []string{"slot-1"}}
	signals, events, cancel := runMonitor(t, stopper, true)
	defer cancel()

	signals <- SignalLock
	waitEvent(t, events)

	signals <- SignalUnlock
	ev := waitEvent(t, events)
	if ev.Idle {
		t.Fatal("expected idle-ended event")
	}
	// No slot is restarted: StopAll was the only registry interaction.
	if stopper.calls != 1 {
		t.Errorf("registry touched %d times, want 1", stopper.calls)
	}
}

func TestDuplicateSignalsCollapse(t *testing.T) {
	stopper := &fakeStopper{}
	signals, events, cancel := runMonitor(t, stopper, true)
	defer cancel()

	signals <- SignalLock
	waitEvent(t, events)
	signals <- SignalLock // repeated lock while already idle
	signals <- SignalUnlock
	ev := waitEvent(t, events)
	if ev.Idle {
		t.Fatal("expected idle-ended, got idle-started")
	}
	if stopper.calls != 1 {
		t.Errorf("StopAll called %d times, want 1", stopper.calls)
	}
}

func TestUnlockBeforeLockIgnored(t *testing.T) {
	stopper := &fakeStopper{}
	signals, events, cancel := runMonitor(t, stopper, true)
	defer cancel()

	signals <- SignalUnlock
	signals <- SignalLock
	ev := waitEvent(t, events)
	if !ev.Idle {
		t.Fatal("stray unlock consumed the lock transition")
	}
}

func TestPauseDisabled(t *testing.T) {
	stopper := &fakeStopper{ids: []string{"slot-1"}}
	signals, events, cancel := runMonitor(t, stopper, false)
	defer cancel()

	signals <- SignalLock
	ev := waitEvent(t, events)
	if !ev.Idle {
		t.Fatal("expected idle-started event")
	}
	if len(ev.Paused) != 0 {
		t.Errorf("paused = %v, want none with pause-on-lock off", ev.Paused)
	}
	if stopper.calls != 0 {
		t.Errorf("StopAll called with pause-on-lock off")
	}
}
