package grid

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"gridshare/api/internal/autosave"
)

// SaveFunc persists a snapshot of the document. It runs outside the editor lock.
type SaveFunc func(Snapshot)

// EditorOptions configures an Editor. Zero values pick sensible defaults.
type EditorOptions struct {
	AutosaveDelay time.Duration
	Save          SaveFunc
	Rand          *rand.Rand
	Now           func() time.Time
}

// Editor owns one in-progress document. Every mutation rechecks completion
// and schedules a debounced save.
type Editor struct {
	mu        sync.Mutex
	doc       Document
	complete  bool
	rev       uint64
	discarded bool
	rng       *rand.Rand
	now       func() time.Time
	save      SaveFunc
	saver     *autosave.Scheduler

	// saveMu orders saves; savedRev is guarded by it.
	saveMu   sync.Mutex
	savedRev uint64
}

// NewEditor takes ownership of doc.
func NewEditor(doc Document, opts EditorOptions) *Editor {
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = time.Second
	}
	if opts.Rand == nil {
		opts.Rand = NewRand()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	doc.Normalize()
	return &Editor{
		doc:      doc,
		complete: doc.IsComplete(),
		rng:      opts.Rand,
		now:      opts.Now,
		save:     opts.Save,
		saver:    autosave.New(opts.AutosaveDelay),
	}
}

// Document returns a copy of the current document.
func (e *Editor) Document() Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

// Complete reports the result of the last completion check.
func (e *Editor) Complete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

// HasContent reports whether resizing would discard user input.
func (e *Editor) HasContent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.HasContent()
}

// UpdateSection sets the title of one cell. Out-of-range indexes are a no-op
// and return false.
func (e *Editor) UpdateSection(index int, title string) bool {
	e.mu.Lock()
	if !e.doc.SetSection(index, title) {
		e.mu.Unlock()
		return false
	}
	e.changedLocked()
	e.mu.Unlock()
	return true
}

// SetImage attaches a photo to a cell.
func (e *Editor) SetImage(index int, dataURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.doc.SetImage(index, dataURL); err != nil {
		return err
	}
	e.changedLocked()
	return nil
}

// RemoveImage detaches the photo of a cell.
func (e *Editor) RemoveImage(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.doc.RemoveImage(index) {
		return false
	}
	e.changedLocked()
	return true
}

// SetBgColor changes the background color. Invalid colors are rejected.
func (e *Editor) SetBgColor(color string) error {
	color = strings.TrimSpace(color)
	if !hexColor.MatchString(color) {
		return &ValidationError{Field: "bgColor", Message: "must be a hex color"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.BgColor = color
	e.changedLocked()
	return nil
}

// SetNickname sets the creator's display name.
func (e *Editor) SetNickname(nickname string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.Nickname = strings.TrimSpace(nickname)
	e.changedLocked()
}

// SetCreatorNickname sets the display name of the photo contributor.
func (e *Editor) SetCreatorNickname(nickname string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.CreatorNickname = strings.TrimSpace(nickname)
	e.changedLocked()
}

// Resize discards all sections and photos and starts over with fresh themes.
// Callers gate this on HasContent and an explicit confirmation.
func (e *Editor) Resize(size int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fresh, err := New(size, e.rng)
	if err != nil {
		return err
	}
	fresh.ID = e.doc.ID
	fresh.BgColor = e.doc.BgColor
	fresh.Nickname = e.doc.Nickname
	e.doc = fresh
	e.changedLocked()
	return nil
}

// Flush writes any pending save now.
func (e *Editor) Flush() {
	e.saver.Flush()
}

// Close flushes the pending save and stops further saves.
func (e *Editor) Close() {
	e.saver.Flush()
	e.saver.Stop()
}

// Discard drops the pending save, stops further saves and waits for a
// running one to finish.
func (e *Editor) Discard() {
	e.mu.Lock()
	e.discarded = true
	e.mu.Unlock()
	e.saver.Stop()

	e.saveMu.Lock()
	e.saveMu.Unlock()
}

func (e *Editor) changedLocked() {
	e.complete = e.doc.IsComplete()
	e.rev++
	if e.save == nil {
		return
	}
	e.saver.Schedule(e.persist)
}

// persist saves the current document. The snapshot is taken after saveMu is
// held, so a save never lands after one of a newer revision.
func (e *Editor) persist() {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	if e.discarded || e.rev == e.savedRev {
		e.mu.Unlock()
		return
	}
	rev := e.rev
	snap := Snapshot{Document: e.doc.Clone(), Timestamp: e.now().UnixMilli()}
	e.mu.Unlock()

	e.save(snap)
	e.savedRev = rev
}
