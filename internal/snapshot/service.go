// Package snapshot persists auto-saved drafts. Each draft is a git
// repository holding grid.json; every save is a commit, so history comes
// for free.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"

	"gridshare/api/internal/grid"
)

const (
	contentFile   = "grid.json"
	mainBranch    = "main"
	defaultAuthor = "gridshare"
)

var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrInvalidDraftID = errors.New("draft id must be a UUID")
)

// Commit describes one saved snapshot.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Save commits snap as the draft's latest state. An unchanged document is
// not committed again; the current head is returned with changed=false.
func (s *Service) Save(draftID string, snap grid.Snapshot, message string) (Commit, bool, error) {
	if err := validateDraftID(draftID); err != nil {
		return Commit{}, false, err
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(draftID)
	if err != nil {
		return Commit{}, false, err
	}

	payload, err := json.MarshalIndent(snap.Document, "", "  ")
	if err != nil {
		return Commit{}, false, fmt.Errorf("marshal snapshot: %w", err)
	}
	payload = append(payload, '\n')

	if head, err := headCommit(repo); err == nil {
		if previous, err := readContent(head); err == nil && bytes.Equal(previous, payload) {
			return toCommit(head), false, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return Commit{}, false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), contentFile), payload, 0o644); err != nil {
		return Commit{}, false, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Commit{}, false, fmt.Errorf("git add snapshot: %w", err)
	}

	when := time.UnixMilli(snap.Timestamp)
	if snap.Timestamp == 0 {
		when = time.Now()
	}
	author := snap.Nickname
	if author == "" {
		author = defaultAuthor
	}
	if message == "" {
		message = "Auto-save"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: "autosave@gridshare.local",
			When:  when,
		},
	})
	if err != nil {
		return Commit{}, false, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), true, nil
}

// Latest returns the most recent snapshot of a draft.
func (s *Service) Latest(draftID string) (grid.Snapshot, Commit, error) {
	if err := validateDraftID(draftID); err != nil {
		return grid.Snapshot{}, Commit{}, err
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(draftID)
	if err != nil {
		return grid.Snapshot{}, Commit{}, err
	}
	head, err := headCommit(repo)
	if err != nil {
		return grid.Snapshot{}, Commit{}, err
	}
	snap, err := snapshotFromCommit(head)
	if err != nil {
		return grid.Snapshot{}, Commit{}, err
	}
	return snap, toCommit(head), nil
}

// At returns the snapshot saved in the given commit (full or abbreviated hash).
func (s *Service) At(draftID, hash string) (grid.Snapshot, error) {
	if err := validateDraftID(draftID); err != nil {
		return grid.Snapshot{}, err
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(draftID)
	if err != nil {
		return grid.Snapshot{}, err
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return grid.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return grid.Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return snapshotFromCommit(commitObj)
}

// History lists saves newest first. limit <= 0 means all.
func (s *Service) History(draftID string, limit int) ([]Commit, error) {
	if err := validateDraftID(draftID); err != nil {
		return nil, err
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(draftID)
	if err != nil {
		return nil, err
	}
	head, err := headCommit(repo)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Drafts lists the ids of every stored draft.
func (s *Service) Drafts() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshots dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && validateDraftID(entry.Name()) == nil {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a draft and its history.
func (s *Service) Delete(draftID string) error {
	if err := validateDraftID(draftID); err != nil {
		return err
	}
	lock := s.draftLock(draftID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(draftID)); err != nil {
		return fmt.Errorf("remove draft repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(draftID string) string {
	return filepath.Join(s.baseDir, draftID)
}

func (s *Service) draftLock(draftID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[draftID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[draftID] = lock
	return lock
}

func (s *Service) open(draftID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(draftID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: draft %s", ErrNotFound, draftID)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(draftID string) (*git.Repository, error) {
	path := s.repoPath(draftID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", mainBranch, err)
	}
	return repo, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("read head commit: %w", err)
	}
	return commitObj, nil
}

func readContent(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func snapshotFromCommit(commitObj *object.Commit) (grid.Snapshot, error) {
	raw, err := readContent(commitObj)
	if err != nil {
		return grid.Snapshot{}, err
	}
	var doc grid.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return grid.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return grid.Snapshot{Document: doc, Timestamp: commitObj.Author.When.UnixMilli()}, nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func validateDraftID(draftID string) error {
	if _, err := uuid.Parse(draftID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDraftID, draftID)
	}
	return nil
}
