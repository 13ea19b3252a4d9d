package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder syntax and connection tuning.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps the connection pool together with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// DialectFor picks Postgres for postgres:// URLs and SQLite for everything else.
func DialectFor(databaseURL string) Dialect {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

func Open(ctx context.Context, databaseURL string) (*DB, error) {
	dialect := DialectFor(databaseURL)
	driver := "pgx"
	if dialect == DialectSQLite {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	switch dialect {
	case DialectPostgres:
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	case DialectSQLite:
		// One writer at a time; a single connection also keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		if !strings.Contains(databaseURL, "mode=memory") && !strings.Contains(databaseURL, ":memory:") {
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("enable WAL mode: %w", err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Rebind rewrites '?' placeholders into the dialect's syntax.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
