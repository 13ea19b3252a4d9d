package sharestore

import (
	"context"
	"time"
)

// Backend is one storage tier.
type Backend interface {
	Name() string
	// Insert stores rec and returns ErrIDConflict if the id is taken.
	Insert(ctx context.Context, rec Record) error
	// Get returns ErrNotFound when no record exists. It does not check expiry.
	Get(ctx context.Context, id string) (Record, error)
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// Purge removes every record that expired before now.
	Purge(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
}
