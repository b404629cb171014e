package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration represents a versioned schema change
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_pins_table",
		Up: `
			CREATE TABLE IF NOT EXISTS pins (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				source_url TEXT NOT NULL,
				note TEXT,
				image TEXT,
				slug TEXT,
				title TEXT,
				description TEXT,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_pins_user_id ON pins(user_id);
			CREATE INDEX IF NOT EXISTS idx_pins_created_at ON pins(created_at);
			CREATE INDEX IF NOT EXISTS idx_pins_slug ON pins(slug);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_pins_slug;
			DROP INDEX IF EXISTS idx_pins_created_at;
			DROP INDEX IF EXISTS idx_pins_user_id;
			DROP TABLE IF EXISTS pins;
		`,
	},
	{
		Version: 2,
		Name:    "add_pin_image_metadata",
		Up: `
			ALTER TABLE pins ADD COLUMN IF NOT EXISTS image_width INTEGER;
			ALTER TABLE pins ADD COLUMN IF NOT EXISTS image_height INTEGER;
			ALTER TABLE pins ADD COLUMN IF NOT EXISTS exif TEXT;
		`,
		Down: `
			ALTER TABLE pins DROP COLUMN IF EXISTS exif;
			ALTER TABLE pins DROP COLUMN IF EXISTS image_height;
			ALTER TABLE pins DROP COLUMN IF EXISTS image_width;
		`,
	},
}

// Migrate runs all pending migrations in version order
func Migrate(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	pending := make([]Migration, len(migrations))
	copy(pending, migrations)
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	for _, m := range pending {
		if m.Version <= currentVersion {
			continue
		}
		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
		slog.Info("applied migration", "version", m.Version, "name", m.Name)
	}

	return nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration applies one migration and records it atomically
func runMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Rollback reverts the most recently applied migration
func Rollback(db *sql.DB) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}
