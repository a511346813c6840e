package history

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS worklogs (
	id           TEXT PRIMARY KEY,
	issue_key    TEXT NOT NULL,
	seconds      INTEGER NOT NULL,
	comment      TEXT NOT NULL DEFAULT '',
	worklog_id   TEXT NOT NULL DEFAULT '',
	submitted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_worklogs_issue_key ON worklogs(issue_key);
CREATE INDEX IF NOT EXISTS idx_worklogs_submitted_at ON worklogs(submitted_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
