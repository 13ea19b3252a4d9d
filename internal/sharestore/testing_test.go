package sharestore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gridshare/api/internal/store"
)

var errBackendDown = errors.New("backend down")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openSQLiteBackend(t *testing.T) *SQLBackend {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "file:"+filepath.Join(t.TempDir(), "share.db")+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewSQLBackend(db)
}

// downBackend fails every call.
type downBackend struct{}

func (downBackend) Name() string { return "down" }
func (downBackend) Insert(context.Context, Record) error { return errBackendDown }
func (downBackend) Get(context.Context, string) (Record, error) { return Record{}, errBackendDown }
func (downBackend) Delete(context.Context, string) error { return errBackendDown }
func (downBackend) Purge(context.Context, time.Time) (int, error) { return 0, errBackendDown }
func (downBackend) Ping(context.Context) error { return errBackendDown }

// flakyBackend wraps a working backend and can be told to refuse writes.
type flakyBackend struct {
	Backend
	failWrites atomic.Bool
}

func (b *flakyBackend) Insert(ctx context.Context, rec Record) error {
	if b.failWrites.Load() {
		return errBackendDown
	}
	return b.Backend.Insert(ctx, rec)
}

// hangingBackend blocks until the call's context is done.
type hangingBackend struct{ downBackend }

func (hangingBackend) Insert(ctx context.Context, _ Record) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingBackend) Get(ctx context.Context, _ string) (Record, error) {
	<-ctx.Done()
	return Record{}, ctx.Err()
}

func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}
