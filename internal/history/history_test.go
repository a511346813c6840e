package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/jirawatch/internal/history"
	"github.com/nhle/jirawatch/tests/testutil"
)

func TestRecordAndRecent(t *testing.T) {
	s := testutil.NewHistoryStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{IssueKey: "ABC-1", Seconds: 1800, WorklogID: "w1", SubmittedAt: base},
		{IssueKey: "ABC-2", Seconds: 151, Comment: "standup", WorklogID: "w2", SubmittedAt: base.Add(time.Hour)},
		{IssueKey: "ABC-1", Seconds: 9060, WorklogID: "w3", SubmittedAt: base.Add(2 * time.Hour)},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].WorklogID != "w3" || recent[1].WorklogID != "w2" {
		t.Errorf("order = %s, %s; want w3, w2", recent[0].WorklogID, recent[1].WorklogID)
	}
	if recent[0].ID == "" {
		t.Error("missing generated id")
	}
}

func TestTotalForIssue(t *testing.T) {
	s := testutil.NewHistoryStore(t)
	ctx := context.Background()

	for _, e := range []history.Entry{
		{IssueKey: "ABC-1", Seconds: 1800},
		{IssueKey: "ABC-1", Seconds: 200},
		{IssueKey: "ABC-2", Seconds: 50},
	} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	total, err := s.TotalForIssue(ctx, "ABC-1")
	if err != nil {
		t.Fatalf("TotalForIssue: %v", err)
	}
	if total != 2000 {
		t.Errorf("total = %d, want 2000", total)
	}

	total, err = s.TotalForIssue(ctx, "NOPE-1")
	if err != nil {
		t.Fatalf("TotalForIssue empty: %v", err)
	}
	if total != 0 {
		t.Errorf("total for unknown issue = %d, want 0", total)
	}
}
