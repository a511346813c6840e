// Package registry owns the in-memory set of timer slots. Each slot is an
// independent start/stop/accumulate state machine guarded by its own lock,
// so independent timers never block each other. Duration is computed
// lazily from the stored total plus the clock delta of the current running
// interval; there is no ticking background loop.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/jirawatch/internal/clock"
	"github.com/nhle/jirawatch/internal/model"
)

var (
	// ErrSlotNotFound is returned when the slot id is unknown.
	ErrSlotNotFound = errors.New("registry: slot not found")

	// ErrSlotBusy is returned by Remove when the slot is still running.
	ErrSlotBusy = errors.New("registry: slot is running")

	// ErrAlreadyRunning is returned by Start in exclusive mode when
	// another slot is already running.
	ErrAlreadyRunning = errors.New("registry: another timer is running")

	// ErrInvalidDuration is returned when a manual duration edit is
	// negative.
	ErrInvalidDuration = errors.New("registry: duration must be non-negative")
)

type slot struct {
	mu    sync.Mutex
	state model.TimerSlot
}

// Registry is the concurrent set of timer slots.
type Registry struct {
	mu        sync.Mutex
	slots     map[string]*slot
	order     []string
	running   map[string]struct{}
	exclusive bool
	clk       clock.Clock
}

// Options configures a Registry.
type Options struct {
	// Exclusive allows at most one running slot at a time. When false,
	// any number of slots may run concurrently.
	Exclusive bool

	// Clock is the time source; defaults to the system clock.
	Clock clock.Clock
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Registry{
		slots:     make(map[string]*slot),
		running:   make(map[string]struct{}),
		exclusive: opts.Exclusive,
		clk:       clk,
	}
}

// Create adds a new empty slot and returns its state.
func (r *Registry) Create() model.TimerSlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := model.TimerSlot{ID: uuid.New().String()}
	r.slots[st.ID] = &slot{state: st}
	r.order = append(r.order, st.ID)
	return st
}

// Remove deletes a slot. A running slot must be stopped first; removing
// it directly fails with ErrSlotBusy so tracked time cannot be dropped
// by accident.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}

	sl.mu.Lock()
	running := sl.state.Running
	sl.mu.Unlock()
	if running {
		return fmt.Errorf("%w: %s", ErrSlotBusy, id)
	}

	delete(r.slots, id)
	delete(r.running, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Start begins counting on a slot. In exclusive mode it fails with
// ErrAlreadyRunning while a different slot is running. Starting a slot
// that is already running is a no-op.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}

	if r.exclusive {
		for rid := range r.running {
			if rid != id {
				return fmt.Errorf("%w: slot %s", ErrAlreadyRunning, rid)
			}
		}
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.state.Running {
		return nil
	}
	sl.state.Running = true
	sl.state.LastStarted = r.clk.Now()
	r.running[id] = struct{}{}
	return nil
}

// Stop folds the elapsed running interval into the stored duration
// exactly once and clears the running flag. Stopping a stopped slot is
// a no-op, not an error.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	r.stopLocked(sl)
	return nil
}

// stopLocked folds elapsed time into the stored total. Callers hold both
// the registry lock and the slot lock.
func (r *Registry) stopLocked(sl *slot) {
	if !sl.state.Running {
		return
	}
	elapsed := int64(r.clk.Now().Sub(sl.state.LastStarted) / time.Second)
	if elapsed > 0 {
		sl.state.Seconds += elapsed
	}
	sl.state.Running = false
	sl.state.LastStarted = time.Time{}
	delete(r.running, sl.state.ID)
}

// StopAll stops every running slot and returns the ids that were
// actually running, in slot order.
func (r *Registry) StopAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stopped []string
	for _, id := range r.order {
		sl := r.slots[id]
		sl.mu.Lock()
		if sl.state.Running {
			r.stopLocked(sl)
			stopped = append(stopped, id)
		}
		sl.mu.Unlock()
	}
	return stopped
}

// AssignIssue binds a slot to a Jira issue key and clears the stale
// display cache until fresh details arrive.
func (r *Registry) AssignIssue(id, issueKey string) error {
	return r.update(id, func(st *model.TimerSlot) error {
		if st.IssueKey != issueKey {
			st.Summary = ""
			st.Description = ""
		}
		st.IssueKey = issueKey
		return nil
	})
}

// SetIssueDetails fills the advisory display cache for a slot. The
// details are dropped if the slot was reassigned meanwhile.
func (r *Registry) SetIssueDetails(id, issueKey, summary, description string) error {
	return r.update(id, func(st *model.TimerSlot) error {
		if st.IssueKey != issueKey {
			return nil
		}
		st.Summary = summary
		st.Description = description
		return nil
	})
}

// SetComment sets the slot's draft worklog comment.
func (r *Registry) SetComment(id, comment string) error {
	return r.update(id, func(st *model.TimerSlot) error {
		st.Comment = comment
		return nil
	})
}

// EditDuration overrides the stored duration with a manual correction.
// On a running slot the current interval is restarted so the override is
// exact at the moment of the edit.
func (r *Registry) EditDuration(id string, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, seconds)
	}
	return r.update(id, func(st *model.TimerSlot) error {
		st.Seconds = seconds
		if st.Running {
			st.LastStarted = r.clk.Now()
		}
		return nil
	})
}

// Reset zeroes a slot's stored duration, stopping it first if needed.
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.slots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	r.stopLocked(sl)
	sl.state.Seconds = 0
	return nil
}

// Deduct subtracts exactly seconds from the stored duration after a
// confirmed worklog submission. Time accrued since the draft was created
// stays on the slot. The result is clamped at zero.
func (r *Registry) Deduct(id string, seconds int64) error {
	return r.update(id, func(st *model.TimerSlot) error {
		st.Seconds -= seconds
		if st.Seconds < 0 {
			st.Seconds = 0
		}
		return nil
	})
}

// Elapsed returns the slot's live total: stored duration plus the
// current running interval, if any.
func (r *Registry) Elapsed(id string) (int64, error) {
	r.mu.Lock()
	sl, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	total := sl.state.Seconds
	if sl.state.Running {
		total += int64(r.clk.Now().Sub(sl.state.LastStarted) / time.Second)
	}
	return total, nil
}

// Get returns a copy of the slot's stored state.
func (r *Registry) Get(id string) (model.TimerSlot, error) {
	r.mu.Lock()
	sl, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return model.TimerSlot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state, nil
}

// Snapshot returns copies of all slots in creation order, exactly as
// stored: running slots keep their Seconds and LastStarted untouched so
// persisting then loading is a no-op apart from last-start rebasing.
func (r *Registry) Snapshot() []model.TimerSlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.TimerSlot, 0, len(r.order))
	for _, id := range r.order {
		sl := r.slots[id]
		sl.mu.Lock()
		out = append(out, sl.state)
		sl.mu.Unlock()
	}
	return out
}

// Running returns the ids of all currently running slots.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, id := range r.order {
		if _, ok := r.running[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Restore replaces the registry contents with a loaded snapshot. Slots
// persisted as running resume counting from loadTime: the last-start
// timestamp is rebased so the downtime between the last save and this
// load is never credited, while the stored duration is kept verbatim.
func (r *Registry) Restore(slots []model.TimerSlot, loadTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots = make(map[string]*slot, len(slots))
	r.order = r.order[:0]
	r.running = make(map[string]struct{})

	for _, st := range slots {
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		if st.Seconds < 0 {
			st.Seconds = 0
		}
		if st.Running {
			st.LastStarted = loadTime
			r.running[st.ID] = struct{}{}
			if r.exclusive && len(r.running) > 1 {
				// An exclusive-mode snapshot can only hold one runner;
				// later ones load stopped.
				delete(r.running, st.ID)
				st.Running = false
				st.LastStarted = time.Time{}
			}
		}
		r.slots[st.ID] = &slot{state: st}
		r.order = append(r.order, st.ID)
	}
}

func (r *Registry) update(id string, fn func(*model.TimerSlot) error) error {
	r.mu.Lock()
	sl, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn(&sl.state)
}
