package store

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"regexp"
	"sort"
	"strings"

	dbfiles "gridshare/api/db"
)

var migrationName = regexp.MustCompile(`^(\d+_[a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one numbered schema change. Down may be empty.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// LoadMigrations reads <version>.up.sql / <version>.down.sql pairs from dir,
// or from the migrations built into the binary when dir is empty. The result
// is ordered oldest first.
func LoadMigrations(dir string) ([]Migration, error) {
	source, err := migrationSource(dir)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		contents, err := fs.ReadFile(source, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		m := byVersion[match[1]]
		if m == nil {
			m = &Migration{Version: match[1]}
			byVersion[match[1]] = m
		}
		if match[2] == "up" {
			m.Up = string(contents)
		} else {
			m.Down = string(contents)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migration %s has no up script", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ApplyMigrations runs every pending up script, each in its own transaction.
func ApplyMigrations(ctx context.Context, db *DB, dir string) error {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	for _, m := range migrations {
		applied, err := isMigrated(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := runMigration(ctx, db, m.Version, m.Up, `INSERT INTO schema_migrations(version) VALUES(?)`); err != nil {
			return err
		}
		log.Printf("store: applied migration %s", m.Version)
	}
	return nil
}

// RollbackMigrations runs the down scripts of every applied migration,
// newest first.
func RollbackMigrations(ctx context.Context, db *DB, dir string) error {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		applied, err := isMigrated(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}
		if strings.TrimSpace(m.Down) == "" {
			return fmt.Errorf("migration %s cannot be rolled back", m.Version)
		}
		if err := runMigration(ctx, db, m.Version, m.Down, `DELETE FROM schema_migrations WHERE version=?`); err != nil {
			return err
		}
		log.Printf("store: rolled back migration %s", m.Version)
	}
	return nil
}

func migrationSource(dir string) (fs.FS, error) {
	if strings.TrimSpace(dir) != "" {
		return os.DirFS(dir), nil
	}
	source, err := fs.Sub(dbfiles.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return source, nil
}

// runMigration executes script and the bookkeeping statement atomically.
func runMigration(ctx context.Context, db *DB, version, script, bookkeeping string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, db.Dialect.Rebind(bookkeeping), version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *DB, version string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, db.Dialect.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version=?`), version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return count > 0, nil
}
