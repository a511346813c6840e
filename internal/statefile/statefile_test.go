package statefile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/jirawatch/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "state.json"))
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on missing file: got %v, want ErrNotFound", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	started := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	state := &model.PersistedState{
		Slots: []model.TimerSlot{
			{ID: "slot-1", IssueKey: "ABC-12", Seconds: 151, Running: true, LastStarted: started},
			{ID: "slot-2", Seconds: 9060, Comment: "refactoring"},
		},
		Drafts: []model.WorklogDraft{
			{
				ID:       "draft-1",
				SlotID:   "slot-2",
				IssueKey: "ABC-34",
				Seconds:  1800,
				Estimate: model.EstimateAdjustment{Mode: model.EstimateAuto},
			},
		},
		FilterCache: map[string]model.FilterCacheEntry{
			"10042": {Keys: []string{"ABC-12", "ABC-34"}, FetchedAt: started},
		},
	}

	if err := s.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Version != model.StateVersion {
		t.Errorf("version = %d, want %d", loaded.Version, model.StateVersion)
	}
	if len(loaded.Slots) != 2 || len(loaded.Drafts) != 1 {
		t.Fatalf("got %d slots, %d drafts", len(loaded.Slots), len(loaded.Drafts))
	}

	got := loaded.Slots[0]
	if got.Seconds != 151 || !got.Running || !got.LastStarted.Equal(started) {
		t.Errorf("slot-1 round trip mismatch: %+v", got)
	}
	if loaded.Slots[1].Seconds != 9060 {
		t.Errorf("slot-2 seconds = %d, want 9060", loaded.Slots[1].Seconds)
	}
	if keys := loaded.FilterCache["10042"].Keys; len(keys) != 2 || keys[0] != "ABC-12" {
		t.Errorf("filter cache round trip mismatch: %v", keys)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		state := &model.PersistedState{
			Slots: []model.TimerSlot{{ID: "slot-1", Seconds: int64(i)}},
		}
		if err := s.Save(state); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
	}

	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind after save")
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Slots[0].Seconds != 2 {
		t.Errorf("last write did not win: seconds = %d", loaded.Slots[0].Seconds)
	}
}

func TestLoadUnsupportedVersion(t *testing.T) {
	s := newTestStore(t)

	payload, _ := json.Marshal(map[string]any{"version": 99, "slots": []any{}})
	if err := os.WriteFile(s.Path(), payload, 0o600); err != nil {
		t.Fatalf("seeding state file: %v", err)
	}

	if _, err := s.Load(); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}

	// The unreadable snapshot must survive for manual recovery.
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("state file was removed: %v", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)

	if err := os.WriteFile(s.Path(), []byte("{truncated"), 0o600); err != nil {
		t.Fatalf("seeding state file: %v", err)
	}

	if _, err := s.Load(); err == nil {
		t.Fatal("Load of corrupt file succeeded")
	}
}
