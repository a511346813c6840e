// Package idle translates platform lock/sleep signals into two logical
// events: idle started and idle ended. On idle start every running slot
// is stopped exactly as if the user pressed stop, so the elapsed time up
// to the idle boundary is preserved. On idle end nothing restarts
// automatically; resuming is always an explicit user action. Pause is
// automatic and conservative, resume is manual and intentional.
package idle

import (
	"context"
	"sync"
)

// Signal is a raw platform notification. Lock and sleep both mean the
// user walked away; unlock and wake both mean they are back.
type Signal int

const (
	SignalLock Signal = iota
	SignalUnlock
)

// Stopper is the slice of the timer registry the monitor needs.
type Stopper interface {
	StopAll() []string
}

// Event is emitted by the monitor after it has acted on a signal.
type Event struct {
	// Idle is true for idle-started, false for idle-ended.
	Idle bool

	// Paused lists the slots that were auto-paused at the idle boundary.
	// Empty on idle-ended and when pause-on-lock is disabled.
	Paused []string
}

// Monitor consumes a signal stream and applies the pause policy.
type Monitor struct {
	signals <-chan Signal
	events  chan<- Event
	stopper Stopper
	pause   bool

	mu         sync.Mutex
	idle       bool
	autoPaused []string
}

// NewMonitor creates a Monitor reading from signals and reporting on
// events. When pauseOnLock is false, signals are still translated into
// events but no slot is touched.
func NewMonitor(signals <-chan Signal, events chan<- Event, stopper Stopper, pauseOnLock bool) *Monitor {
	return &Monitor{
		signals: signals,
		events:  events,
		stopper: stopper,
		pause:   pauseOnLock,
	}
}

// Run processes signals until the context is cancelled or the signal
// channel closes. Intended to run on its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-m.signals:
			if !ok {
				return
			}
			m.handle(sig)
		}
	}
}

func (m *Monitor) handle(sig Signal) {
	switch sig {
	case SignalLock:
		m.mu.Lock()
		if m.idle {
			m.mu.Unlock()
			return
		}
		m.idle = true
		m.mu.Unlock()

		var paused []string
		if m.pause {
			paused = m.stopper.StopAll()
		}

		m.mu.Lock()
		m.autoPaused = paused
		m.mu.Unlock()

		m.emit(Event{Idle: true, Paused: paused})

	case SignalUnlock:
		m.mu.Lock()
		if !m.idle {
			m.mu.Unlock()
			return
		}
		m.idle = false
		m.mu.Unlock()

		// Auto-paused slots stay paused; the list is kept so the UI can
		// show what was interrupted.
		m.emit(Event{Idle: false})
	}
}

// AutoPaused returns the slots stopped at the most recent idle boundary.
func (m *Monitor) AutoPaused() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.autoPaused))
	copy(out, m.autoPaused)
	return out
}

func (m *Monitor) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		// Drop if the consumer is behind; events are advisory and the
		// registry already holds the authoritative state.
	}
}
