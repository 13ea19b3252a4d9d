package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gridshare/api/internal/config"
	"gridshare/api/internal/email"
	"gridshare/api/internal/export"
	"gridshare/api/internal/grid"
	"gridshare/api/internal/search"
	"gridshare/api/internal/sharestore"
	"gridshare/api/internal/snapshot"
	"gridshare/api/internal/store"
)

const testBaseURL = "https://grid.example/shared.html"

var errBackendDown = errors.New("backend down")

type downBackend struct{}

func (downBackend) Name() string { return "down" }
func (downBackend) Insert(context.Context, sharestore.Record) error { return errBackendDown }
func (downBackend) Get(context.Context, string) (sharestore.Record, error) {
	return sharestore.Record{}, errBackendDown
}
func (downBackend) Delete(context.Context, string) error { return errBackendDown }
func (downBackend) Purge(context.Context, time.Time) (int, error) { return 0, errBackendDown }
func (downBackend) Ping(context.Context) error { return errBackendDown }

type testClock struct {
	mu  sync.Mutex
	now time.Time
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

type testEnv struct {
	service      *Service
	handler      http.Handler
	db           *store.DB
	redis        *miniredis.Miniredis
	snapshotsDir string
	cfg          config.Config
}

func testConfig() config.Config {
	return config.Config{
		BaseURL:         testBaseURL,
		InlineLimit:     1000,
		ShareTTL:        7 * 24 * time.Hour,
		AutosaveDelay:   10 * time.Millisecond,
		CleanupInterval: time.Hour,
	}
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "file:"+filepath.Join(t.TempDir(), "gridshare.db")+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// newTestEnv wires a service over SQLite (primary) and miniredis (fallback).
func newTestEnv(t *testing.T, opts sharestore.Options) *testEnv {
	t.Helper()
	db := openTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	links := sharestore.New(
		sharestore.NewSQLBackend(db),
		sharestore.NewRedisBackendWithClient(client, "gridshare"),
		opts,
	)
	env := newEnvWithLinks(t, links)
	env.db = db
	env.redis = mr
	return env
}

func newEnvWithLinks(t *testing.T, links *sharestore.Store) *testEnv {
	t.Helper()
	cfg := testConfig()
	dir := t.TempDir()
	svc := newServiceForTest(cfg, links, dir)
	t.Cleanup(svc.Close)
	return &testEnv{
		service:      svc,
		handler:      NewHTTPServer(svc, "*").Handler(),
		snapshotsDir: dir,
		cfg:          cfg,
	}
}

func newServiceForTest(cfg config.Config, links *sharestore.Store, snapshotsDir string) *Service {
	return New(cfg, Deps{
		Links:     links,
		Snapshots: snapshot.New(snapshotsDir),
		Exporter: export.NewServiceWithRenderer(func(context.Context, string) ([]byte, error) {
			return []byte("\x89PNG fake"), nil
		}),
		Search: search.NewService(nil, search.NewLocal(grid.Suggestions)),
		Mailer: email.NewService(email.Config{}),
	})
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeJSON[errorBody](t, rr)
	if body.Code != code {
		t.Fatalf("expected code %s, got %s", code, body.Code)
	}
	return body
}

func completeGrid(size int) grid.Document {
	doc, _ := grid.Empty(size)
	for i := range doc.Sections {
		doc.Sections[i].Title = grid.Suggestions[i]
	}
	return doc
}
