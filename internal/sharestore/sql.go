package sharestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gridshare/api/internal/store"
)

// SQLBackend stores records in the share_records table.
type SQLBackend struct {
	db *store.DB
}

func NewSQLBackend(db *store.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Name() string { return "sql/" + string(b.db.Dialect) }

func (b *SQLBackend) Insert(ctx context.Context, rec Record) error {
	res, err := b.db.ExecContext(ctx, b.db.Dialect.Rebind(`
		INSERT INTO share_records (id, data, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), rec.ID, string(rec.Data), rec.Timestamp, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert share record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert share record: %w", err)
	}
	if affected == 0 {
		return ErrIDConflict
	}
	return nil
}

func (b *SQLBackend) Get(ctx context.Context, id string) (Record, error) {
	var (
		rec  Record
		data string
	)
	err := b.db.QueryRowContext(ctx, b.db.Dialect.Rebind(`
		SELECT id, data, created_at, expires_at
		FROM share_records
		WHERE id = ?
	`), id).Scan(&rec.ID, &data, &rec.Timestamp, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get share record: %w", err)
	}
	rec.Data = []byte(data)
	return rec, nil
}

func (b *SQLBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, b.db.Dialect.Rebind(`DELETE FROM share_records WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete share record: %w", err)
	}
	return nil
}

func (b *SQLBackend) Purge(ctx context.Context, now time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, b.db.Dialect.Rebind(`DELETE FROM share_records WHERE expires_at < ?`), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge share records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge share records: %w", err)
	}
	return int(affected), nil
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
