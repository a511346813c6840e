// Package history keeps an audit trail of confirmed worklog submissions
// in a local SQLite database. It is advisory only: timer state is never
// reconstructed from it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Entry is one confirmed worklog submission.
type Entry struct {
	ID          string    `db:"id"`
	IssueKey    string    `db:"issue_key"`
	Seconds     int64     `db:"seconds"`
	Comment     string    `db:"comment"`
	WorklogID   string    `db:"worklog_id"`
	SubmittedAt time.Time `db:"submitted_at"`
}

// Store implements the worklog history on a local SQLite database.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the history database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Record inserts a confirmed submission. A missing id is generated.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worklogs (id, issue_key, seconds, comment, worklog_id, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.IssueKey, e.Seconds, e.Comment, e.WorklogID, e.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording worklog for %s: %w", e.IssueKey, err)
	}

	return nil
}

// Recent returns the most recent submissions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM worklogs ORDER BY submitted_at DESC, id LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying worklog history: %w", err)
	}

	return entries, nil
}

// TotalForIssue sums the seconds ever submitted against one issue.
func (s *Store) TotalForIssue(ctx context.Context, issueKey string) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(seconds), 0) FROM worklogs WHERE issue_key = ?", issueKey,
	)
	if err != nil {
		return 0, fmt.Errorf("summing worklogs for %s: %w", issueKey, err)
	}
	return total, nil
}
