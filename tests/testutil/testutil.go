// Package testutil holds shared helpers for package tests.
package testutil

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nhle/jirawatch/internal/history"
	"github.com/nhle/jirawatch/internal/statefile"
)

// FakeClock is a manually advanced clock for deterministic timer tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to a specific instant.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// NewStateStore creates a state store backed by a temp directory that is
// cleaned up with the test.
func NewStateStore(t *testing.T) *statefile.Store {
	t.Helper()
	return statefile.New(filepath.Join(t.TempDir(), "state.json"))
}

// NewHistoryStore creates an in-memory history store with all migrations
// applied. It is closed automatically when the test completes.
func NewHistoryStore(t *testing.T) *history.Store {
	t.Helper()

	s, err := history.New(":memory:")
	if err != nil {
		t.Fatalf("creating test history store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test history store: %v", err)
		}
	})

	return s
}
