package sqlite

import "database/sql"

const schemaVersion = 2

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
    id           TEXT PRIMARY KEY,
    kind         TEXT NOT NULL CHECK(kind IN ('run','grade')),
    exercise_id  TEXT NOT NULL DEFAULT '',
    digest       TEXT NOT NULL,
    code         TEXT NOT NULL,
    outcome      TEXT NOT NULL DEFAULT '',
    state        TEXT NOT NULL DEFAULT '',
    score        REAL NOT NULL DEFAULT 0,
    passed_count INTEGER NOT NULL DEFAULT 0,
    total_tests  INTEGER NOT NULL DEFAULT 0,
    output       TEXT NOT NULL DEFAULT '',
    results      TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_exercise ON submissions(exercise_id);
`

const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_submissions_digest ON submissions(digest);
`

func runMigrations(db *sql.DB) error {
	// Check current version
	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		// Table missing or empty: run the initial schema
		current = 0
	}

	if current >= schemaVersion {
		return nil
	}

	if current < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return err
		}
	}
	if current < 2 {
		if _, err := db.Exec(schemaV2); err != nil {
			return err
		}
	}

	// Upsert schema version
	_, err := db.Exec(`
		DELETE FROM schema_version;
		INSERT INTO schema_version (version) VALUES (?);
	`, schemaVersion)
	return err
}
