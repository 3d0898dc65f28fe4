package database

import (
	"database/sql"
	"fmt"
)

// Schema is applied idempotently at startup; two tables don't warrant a
// migration framework. Messages are append-only rows hanging off their
// session.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	student_id          TEXT NOT NULL,
	volunteer_id        TEXT,
	type                TEXT NOT NULL,
	sub_topic           TEXT NOT NULL DEFAULT '',
	whiteboard_url      TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMP NOT NULL,
	ended_at            TIMESTAMP,
	volunteer_joined_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	author_id  TEXT NOT NULL,
	contents   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_sessions_student ON sessions(student_id, ended_at);
CREATE INDEX IF NOT EXISTS idx_sessions_volunteer ON sessions(volunteer_id, ended_at);
`

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
