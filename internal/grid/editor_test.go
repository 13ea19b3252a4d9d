package grid

import (
	"sync"
	"testing"
	"time"
)

type recordingSaver struct {
	mu    sync.Mutex
	saves []Snapshot
}

func (r *recordingSaver) save(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, s)
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recordingSaver) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[len(r.saves)-1]
}

func newTestEditor(t *testing.T, delay time.Duration) (*Editor, *recordingSaver) {
	t.Helper()
	doc, err := Empty(2)
	if err != nil {
		t.Fatalf("Empty failed: %v", err)
	}
	rec := &recordingSaver{}
	fixed := time.UnixMilli(1_700_000_000_000)
	e := NewEditor(doc, EditorOptions{
		AutosaveDelay: delay,
		Save:          rec.save,
		Rand:          testRand(),
		Now:           func() time.Time { return fixed },
	})
	return e, rec
}

func TestEditorCompletionTracksEdits(t *testing.T) {
	e, _ := newTestEditor(t, time.Hour)
	defer e.Discard()

	for i, title := range []string{"犬", "猫", "鳥"} {
		e.UpdateSection(i, title)
	}
	if e.Complete() {
		t.Fatal("expected incomplete with one empty cell")
	}
	e.UpdateSection(3, "魚")
	if !e.Complete() {
		t.Fatal("expected complete after filling every cell")
	}
	e.UpdateSection(3, "")
	if e.Complete() {
		t.Fatal("clearing a cell should make the grid incomplete again")
	}
}

func TestEditorOutOfRangeIsNoop(t *testing.T) {
	e, rec := newTestEditor(t, 10*time.Millisecond)
	defer e.Discard()

	if e.UpdateSection(4, "x") {
		t.Fatal("expected out-of-range update to fail")
	}
	time.Sleep(40 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("no-op update should not schedule a save")
	}
}

func TestEditorDebouncesSaves(t *testing.T) {
	e, rec := newTestEditor(t, 30*time.Millisecond)
	defer e.Discard()

	e.UpdateSection(0, "a")
	e.UpdateSection(1, "b")
	e.SetNickname("テスト太郎")

	time.Sleep(120 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("expected one coalesced save, got %d", rec.count())
	}
	snap := rec.last()
	if snap.Sections[1].Title != "b" || snap.Nickname != "テスト太郎" {
		t.Fatalf("snapshot missing latest edits: %+v", snap)
	}
	if snap.Timestamp != 1_700_000_000_000 {
		t.Fatalf("unexpected timestamp %d", snap.Timestamp)
	}
}

func TestEditorCloseFlushes(t *testing.T) {
	e, rec := newTestEditor(t, time.Hour)
	e.UpdateSection(0, "a")
	e.Close()

	if rec.count() != 1 {
		t.Fatalf("expected Close to flush the pending save, got %d", rec.count())
	}
	e.UpdateSection(1, "b")
	e.Flush()
	if rec.count() != 1 {
		t.Fatal("expected no saves after Close")
	}
}

func TestEditorDiscardDropsPending(t *testing.T) {
	e, rec := newTestEditor(t, 10*time.Millisecond)
	e.UpdateSection(0, "a")
	e.Discard()

	time.Sleep(40 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("expected pending save to be dropped, got %d", rec.count())
	}
}

func TestEditorResizeDiscardsContent(t *testing.T) {
	e, _ := newTestEditor(t, time.Hour)
	defer e.Discard()

	e.SetNickname("taro")
	if err := e.SetImage(0, testImage); err != nil {
		t.Fatalf("SetImage failed: %v", err)
	}
	if !e.HasContent() {
		t.Fatal("expected content before resize")
	}

	if err := e.Resize(3); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	doc := e.Document()
	if doc.Size != 3 || len(doc.Sections) != 9 {
		t.Fatalf("expected 3x3 grid, got size %d with %d sections", doc.Size, len(doc.Sections))
	}
	if doc.HasImages() {
		t.Fatal("resize should discard photos")
	}
	if doc.Nickname != "taro" {
		t.Fatal("resize should keep the nickname")
	}
	if err := e.Resize(12); err == nil {
		t.Fatal("expected invalid size to be rejected")
	}
}

func TestEditorSetBgColor(t *testing.T) {
	e, _ := newTestEditor(t, time.Hour)
	defer e.Discard()

	if err := e.SetBgColor("#123abc"); err != nil {
		t.Fatalf("SetBgColor failed: %v", err)
	}
	if err := e.SetBgColor("red"); err == nil {
		t.Fatal("expected invalid color to be rejected")
	}
	if got := e.Document().BgColor; got != "#123abc" {
		t.Fatalf("expected #123abc, got %s", got)
	}
}

func TestEditorDocumentIsCopy(t *testing.T) {
	e, _ := newTestEditor(t, time.Hour)
	defer e.Discard()

	doc := e.Document()
	doc.Sections[0].Title = "mutated"
	if e.Document().Sections[0].Title != "" {
		t.Fatal("Document should return a copy")
	}
}

func TestEditorConcurrentEdits(t *testing.T) {
	e, _ := newTestEditor(t, time.Millisecond)
	defer e.Discard()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.UpdateSection(i%4, "x")
			e.Complete()
			e.Document()
		}(i)
	}
	wg.Wait()
}

// blockingEditor returns an editor whose saves of a "犬" title wait for release.
func blockingEditor(t *testing.T) (*Editor, *recordingSaver, chan struct{}, chan struct{}) {
	t.Helper()
	doc, err := Empty(2)
	if err != nil {
		t.Fatalf("Empty failed: %v", err)
	}
	rec := &recordingSaver{}
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	e := NewEditor(doc, EditorOptions{
		AutosaveDelay: time.Hour,
		Rand:          testRand(),
		Save: func(s Snapshot) {
			entered <- struct{}{}
			if s.Sections[0].Title == "犬" {
				<-release
			}
			rec.save(s)
		},
	})
	return e, rec, entered, release
}

func TestEditorSavesInOrder(t *testing.T) {
	e, rec, entered, release := blockingEditor(t)
	defer e.Discard()

	e.UpdateSection(0, "犬")
	first := make(chan struct{})
	go func() {
		e.Flush()
		close(first)
	}()
	<-entered

	e.UpdateSection(0, "猫")
	second := make(chan struct{})
	go func() {
		e.Flush()
		close(second)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	<-first
	<-second

	if rec.count() != 2 {
		t.Fatalf("expected two saves, got %d", rec.count())
	}
	if got := rec.last().Sections[0].Title; got != "猫" {
		t.Fatalf("newest edit must be saved last, got %q", got)
	}
}

func TestEditorDiscardWaitsForRunningSave(t *testing.T) {
	e, rec, entered, release := blockingEditor(t)

	e.UpdateSection(0, "犬")
	go e.Flush()
	<-entered

	discarded := make(chan struct{})
	go func() {
		e.Discard()
		close(discarded)
	}()
	select {
	case <-discarded:
		t.Fatal("Discard returned while a save was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-discarded
	e.UpdateSection(1, "x")
	e.Flush()
	if rec.count() != 1 {
		t.Fatalf("expected only the running save, got %d", rec.count())
	}
}
