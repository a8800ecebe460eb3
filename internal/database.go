package internal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenDatabase opens (creating if needed) the session-sync SQLite database
// and applies the schema.
func OpenDatabase(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StorageError{Op: "open", Err: err}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("database ping failed: %w", err)}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id              TEXT PRIMARY KEY,
	key             TEXT NOT NULL UNIQUE,
	type            TEXT NOT NULL,
	root_path       TEXT NOT NULL,
	enabled         INTEGER NOT NULL DEFAULT 1,
	status_message  TEXT NOT NULL DEFAULT '',
	last_run_at     TEXT,
	last_success_at TEXT,
	last_error_at   TEXT,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	workspace_id      TEXT NOT NULL REFERENCES workspaces(id),
	source_id         TEXT REFERENCES sources(id),
	external_id       TEXT,
	title             TEXT NOT NULL,
	summary           TEXT,
	provider          TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	import_source     TEXT NOT NULL DEFAULT '',
	started_at        TEXT,
	ended_at          TEXT,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	estimated_cost    REAL NOT NULL DEFAULT 0,
	first_seen_at     TEXT NOT NULL,
	last_seen_at      TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_natural_key
	ON sessions(source_id, external_id);

CREATE TABLE IF NOT EXISTS messages (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL REFERENCES sessions(id),
	external_id       TEXT NOT NULL,
	role              TEXT NOT NULL,
	content           TEXT NOT NULL,
	metadata          TEXT,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	timestamp         TEXT,
	ordinal           INTEGER NOT NULL,
	UNIQUE(session_id, external_id)
);

CREATE TABLE IF NOT EXISTS message_parts (
	id          TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL REFERENCES messages(id),
	external_id TEXT NOT NULL,
	type        TEXT NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	payload     TEXT,
	timestamp   TEXT,
	ordinal     INTEGER NOT NULL,
	UNIQUE(message_id, external_id)
);

CREATE TABLE IF NOT EXISTS session_tasks (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	priority    TEXT NOT NULL DEFAULT 'medium',
	ordinal     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS session_artifacts (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	type          TEXT NOT NULL,
	name          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	message_index INTEGER,
	ordinal       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS session_tags (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	tag        TEXT NOT NULL,
	PRIMARY KEY(session_id, tag)
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id                TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL REFERENCES sources(id),
	status            TEXT NOT NULL,
	started_at        TEXT NOT NULL,
	finished_at       TEXT,
	sessions_scanned  INTEGER NOT NULL DEFAULT 0,
	sessions_upserted INTEGER NOT NULL DEFAULT 0,
	messages_upserted INTEGER NOT NULL DEFAULT 0,
	parts_upserted    INTEGER NOT NULL DEFAULT 0,
	note              TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_errors (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES sync_runs(id),
	source_id  TEXT NOT NULL REFERENCES sources(id),
	code       TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	source_id TEXT NOT NULL REFERENCES sources(id),
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY(source_id, key)
);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}
	return nil
}
