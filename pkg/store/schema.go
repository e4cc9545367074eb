package store

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// OpenDatabase creates and initializes a standalone SQLite database with the
// required schema. Tests use this directly; the service goes through Initialize.
func OpenDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Single connection so per-connection pragmas issued during
	// migrations apply to every subsequent statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database: create fresh schema at the current version.
	if currentVersion == 0 {
		if err := createSchema(db); err != nil {
			return err
		}
		return setSchemaVersion(db, CurrentSchemaVersion)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateProjectCascades(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateProjectCascades rebuilds the project-scoped tables so their
// project_id foreign keys carry ON DELETE CASCADE. Uses the standard
// SQLite rebuild recipe; legacy_alter_table keeps child foreign keys
// pointing at the original table names across the renames.
func migrateProjectCascades(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys=OFF",
		"PRAGMA legacy_alter_table=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to set migration pragma: %w", err)
		}
	}
	defer func() {
		_, _ = db.Exec("PRAGMA legacy_alter_table=OFF")
		_, _ = db.Exec("PRAGMA foreign_keys=ON")
	}()

	copySQL := map[string]string{
		// v1 messages carried an unused tool_name column; drop it.
		"messages": `INSERT INTO messages (id, project_id, role, content, created_at)
			SELECT id, project_id, role, content, created_at FROM messages_old`,
	}

	for _, table := range []string{"workspaces", "schedule_events", "messages", "conversation_state", "experience_log"} {
		copyStmt := copySQL[table]
		if copyStmt == "" {
			copyStmt = fmt.Sprintf("INSERT INTO %s SELECT * FROM %s_old", table, table)
		}
		steps := []string{
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s_old", table, table),
			projectScopedDDL[table],
			copyStmt,
			fmt.Sprintf("DROP TABLE %s_old", table),
		}
		for _, stmt := range steps {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to rebuild %s: %w", table, err)
			}
		}
	}

	// Dropping the old tables took their indices with them.
	for _, stmt := range schemaIndices {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to recreate index: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read user_version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// projectScopedDDL holds the tables hanging directly off projects.
// Deleting a project row cascades through these; workspace children
// (pages, notes, highlights) cascade off workspaces in turn. The
// migration to v2 rebuilds old databases against these definitions.
//
//nolint:gochecknoglobals // Shared between createSchema and migrations
var projectScopedDDL = map[string]string{
	"workspaces": `CREATE TABLE IF NOT EXISTS workspaces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		slug TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(project_id, slug)
	)`,
	"schedule_events": `CREATE TABLE IF NOT EXISTS schedule_events (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT 'general',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	"messages": `CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	"conversation_state": `CREATE TABLE IF NOT EXISTS conversation_state (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
		summary TEXT NOT NULL DEFAULT '',
		total_exchanges INTEGER NOT NULL DEFAULT 0,
		compactions INTEGER NOT NULL DEFAULT 0,
		last_compaction TEXT NOT NULL DEFAULT '',
		engine TEXT NOT NULL DEFAULT ''
	)`,
	"experience_log": `CREATE TABLE IF NOT EXISTS experience_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

//nolint:gochecknoglobals // Shared between createSchema and migrations
var schemaIndices = []string{
	`CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_project ON schedule_events(project_id, starts_at)`,
	`CREATE INDEX IF NOT EXISTS idx_highlights_status ON page_highlights(status)`,
	`CREATE INDEX IF NOT EXISTS idx_workspace_pages ON workspace_pages(workspace_id)`,
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_path TEXT NOT NULL DEFAULT '',
			total_pages INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		projectScopedDDL["workspaces"],
		`CREATE TABLE IF NOT EXISTS workspace_pages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workspace_id INTEGER NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			page_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			added_by TEXT NOT NULL DEFAULT '',
			added_at TEXT NOT NULL,
			regions_of_interest TEXT NOT NULL DEFAULT '[]',
			UNIQUE(workspace_id, page_name)
		)`,
		`CREATE TABLE IF NOT EXISTS workspace_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workspace_id INTEGER NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			source_page TEXT NOT NULL DEFAULT '',
			added_at TEXT NOT NULL
		)`,
		projectScopedDDL["schedule_events"],
		projectScopedDDL["messages"],
		projectScopedDDL["conversation_state"],
		`CREATE TABLE IF NOT EXISTS page_highlights (
			id TEXT PRIMARY KEY,
			workspace_id INTEGER NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			page_name TEXT NOT NULL,
			mission TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			bboxes TEXT NOT NULL DEFAULT '[]',
			result_note TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		projectScopedDDL["experience_log"],
	}
	statements = append(statements, schemaIndices...)

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
