package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"gridshare/api/internal/grid"
)

func testSnapshot(title string, ts time.Time) grid.Snapshot {
	doc, _ := grid.Empty(2)
	doc.SetSection(0, title)
	doc.Nickname = "taro"
	return grid.Snapshot{Document: doc, Timestamp: ts.UnixMilli()}
}

func TestSnapshotLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	draftID := uuid.NewString()
	start := time.Unix(1_700_000_000, 0)

	first, changed, err := svc.Save(draftID, testSnapshot("犬", start), "")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !changed || first.Hash == "" || first.Author != "taro" {
		t.Fatalf("unexpected first commit %+v changed=%v", first, changed)
	}
	if _, err := os.Stat(filepath.Join(tempDir, draftID, contentFile)); err != nil {
		t.Fatalf("grid.json missing: %v", err)
	}

	again, changed, err := svc.Save(draftID, testSnapshot("犬", start.Add(time.Minute)), "")
	if err != nil {
		t.Fatalf("Save() unchanged error = %v", err)
	}
	if changed || again.Hash != first.Hash {
		t.Fatal("unchanged document should not create a commit")
	}

	second, changed, err := svc.Save(draftID, testSnapshot("猫", start.Add(2*time.Minute)), "Edit cell 0")
	if err != nil || !changed {
		t.Fatalf("Save() second error = %v changed=%v", err, changed)
	}

	snap, head, err := svc.Latest(draftID)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if head.Hash != second.Hash || snap.Sections[0].Title != "猫" {
		t.Fatalf("unexpected latest %+v %+v", head, snap.Sections)
	}
	if snap.Timestamp != start.Add(2*time.Minute).UnixMilli() {
		t.Fatalf("expected timestamp from commit time, got %d", snap.Timestamp)
	}

	history, err := svc.History(draftID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != second.Hash || history[0].Message != "Edit cell 0" {
		t.Fatalf("unexpected history %+v", history)
	}
	if limited, _ := svc.History(draftID, 1); len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	old, err := svc.At(draftID, first.Hash)
	if err != nil {
		t.Fatalf("At() error = %v", err)
	}
	if old.Sections[0].Title != "犬" {
		t.Fatalf("expected first version, got %q", old.Sections[0].Title)
	}

	ids, err := svc.Drafts()
	if err != nil || len(ids) != 1 || ids[0] != draftID {
		t.Fatalf("Drafts() = %v, %v", ids, err)
	}

	if err := svc.Delete(draftID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := svc.Latest(draftID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSnapshotRejectsUnsafeIDs(t *testing.T) {
	svc := New(t.TempDir())
	for _, id := range []string{"", "../etc", "draft-1"} {
		if _, _, err := svc.Save(id, testSnapshot("x", time.Now()), ""); !errors.Is(err, ErrInvalidDraftID) {
			t.Fatalf("Save(%q): expected ErrInvalidDraftID, got %v", id, err)
		}
	}
}

func TestSnapshotUnknownDraft(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History(uuid.NewString(), 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ids, err := New(filepath.Join(t.TempDir(), "missing")).Drafts()
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no drafts, got %v %v", ids, err)
	}
}

func TestSnapshotConcurrentSaves(t *testing.T) {
	svc := New(t.TempDir())
	draftID := uuid.NewString()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := string(rune('a' + i))
			if _, _, err := svc.Save(draftID, testSnapshot(title, time.Now()), ""); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, err := svc.History(draftID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 8 {
		t.Fatalf("expected 8 commits, got %d", len(history))
	}
}
