package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 2

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := createSchemaVersionTable(tx); err != nil {
		return err
	}
	creators := []func(*sql.Tx) error{
		createEntitiesTable,
		createCommitsTables,
		createRangesTable,
		createPresenceTable,
		createChangesTable,
		createReachabilityTable,
		createDepsTable,
		createRunsTable,
	}
	for _, create := range creators {
		if err := create(tx); err != nil {
			return err
		}
	}
	if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
	return nil
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version == 0 {
		// Created by a process that died before the schema transaction committed.
		return db.initializeSchema()
	}

	db.logger.Info("Running database migrations",
		"from_version", version,
		"to_version", currentSchemaVersion,
	)
	if version < 2 {
		if err := db.migrateToV2(); err != nil {
			return err
		}
	}
	return nil
}

// migrateToV2 adds commit generations. Existing commits stay unnumbered
// until the next walk over them.
func (db *DB) migrateToV2() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := execAll(tx, "commits",
		"ALTER TABLE commits ADD COLUMN generation INTEGER",
		"CREATE INDEX IF NOT EXISTS idx_commits_generation ON commits(generation)",
	); err != nil {
		return err
	}
	if err := setSchemaVersion(tx, 2); err != nil {
		return err
	}
	return tx.Commit()
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.conn.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createSchemaVersionTable creates the schema_version tracking table
func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

func execAll(tx *sql.Tx, table string, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}
	}
	return nil
}

// createEntitiesTable creates the entities table.
// File entities have no parent; every other entity has one.
func createEntitiesTable(tx *sql.Tx) error {
	return execAll(tx, "entities", `
		CREATE TABLE IF NOT EXISTS entities (
			id INTEGER PRIMARY KEY,
			parent_id INTEGER REFERENCES entities(id),
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			CHECK((kind = 'file') = (parent_id IS NULL)),
			UNIQUE(parent_id, name, kind)
		)`,
		// UNIQUE treats NULL parents as distinct.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_files ON entities(name) WHERE parent_id IS NULL",
	)
}

// createCommitsTables creates commits and their parent edges
func createCommitsTables(tx *sql.Tx) error {
	return execAll(tx, "commits", `
		CREATE TABLE IF NOT EXISTS commits (
			id INTEGER PRIMARY KEY,
			sha TEXT NOT NULL UNIQUE,
			is_merge INTEGER NOT NULL DEFAULT 0,
			author_date INTEGER NOT NULL,
			commit_date INTEGER NOT NULL,
			has_change_info INTEGER NOT NULL DEFAULT 0,
			has_presence_info INTEGER NOT NULL DEFAULT 0,
			has_reachability_info INTEGER NOT NULL DEFAULT 0,
			generation INTEGER
		)`, `
		CREATE TABLE IF NOT EXISTS commit_parents (
			commit_id INTEGER NOT NULL REFERENCES commits(id),
			position INTEGER NOT NULL,
			parent_sha TEXT NOT NULL,
			PRIMARY KEY(commit_id, position)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_commit_parents_sha ON commit_parents(parent_sha)",
		"CREATE INDEX IF NOT EXISTS idx_commits_commit_date ON commits(commit_date)",
		"CREATE INDEX IF NOT EXISTS idx_commits_generation ON commits(generation)", `
		CREATE TABLE IF NOT EXISTS refs (
			name TEXT PRIMARY KEY,
			commit_id INTEGER NOT NULL REFERENCES commits(id),
			updated_at INTEGER NOT NULL
		)`,
	)
}

// createRangesTable creates the deduplicated range table
func createRangesTable(tx *sql.Tx) error {
	return execAll(tx, "ranges", `
		CREATE TABLE IF NOT EXISTS ranges (
			id INTEGER PRIMARY KEY,
			start_byte INTEGER NOT NULL,
			start_row INTEGER NOT NULL,
			start_col INTEGER NOT NULL,
			end_byte INTEGER NOT NULL,
			end_row INTEGER NOT NULL,
			end_col INTEGER NOT NULL,
			CHECK(start_byte <= end_byte),
			UNIQUE(start_byte, start_row, start_col, end_byte, end_row, end_col)
		)`,
	)
}

// createPresenceTable creates presence, one row per (commit, entity)
func createPresenceTable(tx *sql.Tx) error {
	return execAll(tx, "presence", `
		CREATE TABLE IF NOT EXISTS presence (
			commit_id INTEGER NOT NULL REFERENCES commits(id),
			entity_id INTEGER NOT NULL REFERENCES entities(id),
			file_id INTEGER NOT NULL REFERENCES entities(id),
			name_range_id INTEGER NOT NULL REFERENCES ranges(id),
			body_range_id INTEGER NOT NULL REFERENCES ranges(id),
			UNIQUE(commit_id, entity_id)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_presence_file ON presence(commit_id, file_id)",
		"CREATE INDEX IF NOT EXISTS idx_presence_entity ON presence(entity_id)",
	)
}

// createChangesTable creates changes, one row per (commit, entity)
func createChangesTable(tx *sql.Tx) error {
	return execAll(tx, "changes", `
		CREATE TABLE IF NOT EXISTS changes (
			commit_id INTEGER NOT NULL REFERENCES commits(id),
			entity_id INTEGER NOT NULL REFERENCES entities(id),
			kind TEXT NOT NULL CHECK(kind IN ('A', 'D', 'M')),
			adds INTEGER NOT NULL CHECK(adds >= 0),
			dels INTEGER NOT NULL CHECK(dels >= 0),
			CHECK(kind != 'M' OR adds > 0 OR dels > 0),
			UNIQUE(commit_id, entity_id)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_changes_entity ON changes(entity_id)",
	)
}

// createReachabilityTable creates the (source, ancestor) closure
func createReachabilityTable(tx *sql.Tx) error {
	return execAll(tx, "reachability", `
		CREATE TABLE IF NOT EXISTS reachability (
			source INTEGER NOT NULL REFERENCES commits(id),
			target INTEGER NOT NULL REFERENCES commits(id),
			CHECK(source != target),
			UNIQUE(source, target)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_reachability_target ON reachability(target)",
	)
}

// createDepsTable creates imported entity dependencies
func createDepsTable(tx *sql.Tx) error {
	return execAll(tx, "deps", `
		CREATE TABLE IF NOT EXISTS deps (
			commit_id INTEGER NOT NULL REFERENCES commits(id),
			source_id INTEGER NOT NULL REFERENCES entities(id),
			target_id INTEGER NOT NULL REFERENCES entities(id),
			kind TEXT NOT NULL,
			line INTEGER NOT NULL,
			UNIQUE(commit_id, source_id, target_id, kind, line)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_deps_target ON deps(commit_id, target_id)",
	)
}

// createRunsTable creates ingestion run bookkeeping
func createRunsTable(tx *sql.Tx) error {
	return execAll(tx, "runs", `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			tool_version TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
			commits_seen INTEGER NOT NULL DEFAULT 0,
			commits_ingested INTEGER NOT NULL DEFAULT 0,
			warnings INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
	)
}
