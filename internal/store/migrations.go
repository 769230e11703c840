package store

import "fmt"

// migrations are applied in order; each entry runs at most once, tracked
// by the schema_migrations table.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		context_id  TEXT PRIMARY KEY,
		session_num INTEGER NOT NULL UNIQUE,
		created_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bindings (
		context_id TEXT PRIMARY KEY,
		project    TEXT NOT NULL,
		stage      TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bindings_project ON bindings(project)`,
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
		s.logger.Debug().Int("version", i+1).Msg("migration applied")
	}

	return nil
}
