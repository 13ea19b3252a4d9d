package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridshare/api/internal/blob"
	"gridshare/api/internal/config"
	"gridshare/api/internal/email"
	"gridshare/api/internal/export"
	"gridshare/api/internal/grid"
	"gridshare/api/internal/imaging"
	"gridshare/api/internal/search"
	"gridshare/api/internal/share"
	"gridshare/api/internal/sharestore"
	"gridshare/api/internal/snapshot"
	"gridshare/api/internal/util"
)

const (
	shareModeAuto   = "auto"
	shareModeInline = "inline"
	// noticeDelaySeconds is how long the error page shows before going home.
	noticeDelaySeconds = 3
)

type DraftView struct {
	ID         string        `json:"id"`
	Document   grid.Document `json:"document"`
	Complete   bool          `json:"complete"`
	HasContent bool          `json:"hasContent"`
}

type SettingsInput struct {
	BgColor         *string `json:"bgColor"`
	Nickname        *string `json:"nickname"`
	CreatorNickname *string `json:"creatorNickname"`
}

type ShareInput struct {
	Document grid.Document `json:"document"`
	Mode     string        `json:"mode"`
}

type EmailInput struct {
	URL      string   `json:"url"`
	To       []string `json:"to"`
	Nickname string   `json:"nickname"`
}

type ExportInput struct {
	Document grid.Document `json:"document"`
	Format   export.Format `json:"format"`
	ShareURL string        `json:"shareUrl"`
}

// Deps are the collaborators of a Service. Blobs may be nil when object
// storage is not configured.
type Deps struct {
	Links     *sharestore.Store
	Snapshots *snapshot.Service
	Exporter  *export.Service
	Search    *search.Service
	Mailer    *email.Service
	Blobs     *blob.Store
}

type Service struct {
	cfg       config.Config
	links     *sharestore.Store
	resolver  *share.Resolver
	snapshots *snapshot.Service
	exporter  *export.Service
	search    *search.Service
	mailer    *email.Service
	blobs     *blob.Store

	draftsMu sync.Mutex
	drafts   map[string]*grid.Editor
}

func New(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:       cfg,
		links:     deps.Links,
		resolver:  share.NewResolver(deps.Links, share.Options{InlineLimit: cfg.InlineLimit}),
		snapshots: deps.Snapshots,
		exporter:  deps.Exporter,
		search:    deps.Search,
		mailer:    deps.Mailer,
		blobs:     deps.Blobs,
		drafts:    make(map[string]*grid.Editor),
	}
}

func (s *Service) Ping(ctx context.Context) sharestore.Health {
	return s.links.Ping(ctx)
}

// CreateDraft starts a grid of the given size filled with random themes.
func (s *Service) CreateDraft(size int) (DraftView, error) {
	if size == 0 {
		size = grid.DefaultSize
	}
	doc, err := grid.New(size, grid.NewRand())
	if err != nil {
		return DraftView{}, err
	}
	return s.startDraft(doc, "Create draft")
}

// DraftFromShare opens a shared grid as a new draft, so the recipient can
// contribute photos and share it on.
func (s *Service) DraftFromShare(ctx context.Context, params url.Values) (DraftView, error) {
	doc, err := s.OpenShare(ctx, params)
	if err != nil {
		return DraftView{}, err
	}
	return s.startDraft(doc, "Open shared grid")
}

func (s *Service) startDraft(doc grid.Document, message string) (DraftView, error) {
	doc.ID = uuid.NewString()
	if _, _, err := s.snapshots.Save(doc.ID, grid.Snapshot{Document: doc, Timestamp: time.Now().UnixMilli()}, message); err != nil {
		return DraftView{}, err
	}

	editor := s.newEditor(doc)
	s.draftsMu.Lock()
	s.drafts[doc.ID] = editor
	s.draftsMu.Unlock()
	return viewOf(doc.ID, editor), nil
}

func (s *Service) GetDraft(draftID string) (DraftView, error) {
	editor, err := s.editor(draftID)
	if err != nil {
		return DraftView{}, err
	}
	return viewOf(draftID, editor), nil
}

func (s *Service) UpdateSection(draftID string, index int, title string) (DraftView, error) {
	editor, err := s.editor(draftID)
	if err != nil {
		return DraftView{}, err
	}
	if !editor.UpdateSection(index, title) {
		return DraftView{}, grid.ErrIndexOutOfRange
	}
	return viewOf(draftID, editor), nil
}

func (s *Service) UpdateSettings(draftID string, input SettingsInput) (DraftView, error) {
	editor, err := s.editor(draftID)
	if err != nil {
		return DraftView{}, err
	}
	if input.BgColor != nil {
		if err := editor.SetBgColor(*input.BgColor); err != nil {
			return DraftView{}, err
		}
	}
	if input.Nickname != nil {
		editor.SetNickname(*input.Nickname)
	}
	if input.CreatorNickname != nil {
		editor.SetCreatorNickname(*input.CreatorNickname)
	}
	return viewOf(draftID, editor), nil
}

// ResizeDraft replaces the grid with a fresh one. Drafts with content are
// only resized when the caller confirmed the loss.
func (s *Service) ResizeDraft(draftID string, size int, confirm bool) (DraftView, error) {
	editor, err := s.editor(draftID)
	if err != nil {
		return DraftView{}, err
	}
	if editor.HasContent() && !confirm {
		return DraftView{}, domainError(http.StatusConflict, "CONFIRM_REQUIRED", "Resizing discards every title and photo", map[string]any{"size": size})
	}
	if err := editor.Resize(size); err != nil {
		return DraftView{}, err
	}
	return viewOf(draftID, editor), nil
}

func (s *Service) SetDraftImage(draftID string, index int, upload io.Reader) (DraftView, error) {
	editor, err := s.editor(draftID)
	if err != nil {
		return DraftView{}, err
	}
	if !editor.Document().InRange(index) {
		return DraftView{}, grid.ErrIndexOutOfRange
	}
	dataURL, err := imaging.Compress(upload, imaging.Options{})
	if err != nil {
		return DraftView{}, err
	}
	if err := editor.SetImage(index, dataURL); err != nil {
		return DraftView{}, err
	}
	return viewOf(draftID, editor), nil
}

func (s *Service) RemoveDraftImage(draftID string, index int) (DraftView, error) {
	editor, err := s.editor(draftID)
	if err != nil {
		return DraftView{}, err
	}
	if !editor.Document().InRange(index) {
		return DraftView{}, grid.ErrIndexOutOfRange
	}
	editor.RemoveImage(index)
	return viewOf(draftID, editor), nil
}

// DraftHistory flushes pending edits so the newest state is listed.
func (s *Service) DraftHistory(draftID string, limit int) ([]snapshot.Commit, error) {
	editor, err := s.editor(draftID)
	if err != nil {
		return nil, err
	}
	editor.Flush()
	return s.snapshots.History(draftID, limit)
}

// DraftRevision returns the draft as it was at one saved commit.
func (s *Service) DraftRevision(draftID, hash string) (grid.Snapshot, error) {
	return s.snapshots.At(draftID, hash)
}

// ListDrafts returns the ids of every draft with saved history.
func (s *Service) ListDrafts() ([]string, error) {
	ids, err := s.snapshots.Drafts()
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// DeleteDraft drops pending edits and the saved history.
func (s *Service) DeleteDraft(draftID string) error {
	s.draftsMu.Lock()
	editor, ok := s.drafts[draftID]
	delete(s.drafts, draftID)
	s.draftsMu.Unlock()
	if ok {
		// Returns only once a running autosave is done with the repo.
		editor.Discard()
	}
	return s.snapshots.Delete(draftID)
}

// Share validates a finished grid and builds its share link.
func (s *Service) Share(ctx context.Context, input ShareInput) (share.Link, error) {
	doc := input.Document
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return share.Link{}, err
	}
	if !doc.IsComplete() {
		return share.Link{}, grid.ErrIncomplete
	}

	switch strings.TrimSpace(input.Mode) {
	case "", shareModeAuto:
		return s.resolver.ShortShareURL(ctx, s.cfg.BaseURL, doc)
	case shareModeInline:
		link, err := share.ShareURL(s.cfg.BaseURL, doc)
		if err != nil {
			return share.Link{}, err
		}
		return share.Link{URL: link, Transport: share.TransportInline}, nil
	default:
		return share.Link{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "mode must be auto or inline", nil)
	}
}

// OpenShare resolves share link parameters. Ids that cannot have been
// issued are reported as not found without touching storage.
func (s *Service) OpenShare(ctx context.Context, params url.Values) (grid.Document, error) {
	if id := strings.TrimSpace(params.Get("id")); id != "" && !util.IsShortID(id) {
		return grid.Document{}, sharestore.ErrNotFound
	}
	return s.resolver.Resolve(ctx, params)
}

func (s *Service) DeleteShare(ctx context.Context, id string) error {
	if !util.IsShortID(id) {
		return domainError(http.StatusBadRequest, "INVALID_SHARE_ID", "Share id must be 8 letters or digits", nil)
	}
	return s.links.Delete(ctx, id)
}

func (s *Service) EmailShare(input EmailInput) error {
	link, err := url.Parse(strings.TrimSpace(input.URL))
	if err != nil || (link.Scheme != "http" && link.Scheme != "https") || link.Host == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "url must be an absolute http(s) URL", nil)
	}
	return s.mailer.SendShareLink(input.To, input.Nickname, link.String(), s.cfg.ShareTTL)
}

func (s *Service) CompressImage(upload io.Reader) (string, error) {
	return imaging.Compress(upload, imaging.Options{})
}

func (s *Service) Export(ctx context.Context, input ExportInput) (*export.Result, error) {
	doc := input.Document
	doc.Normalize()
	return s.exporter.Export(ctx, export.Request{Document: doc, Format: input.Format, ShareURL: input.ShareURL})
}

// ExportLink renders the grid as PNG, uploads it and returns a download link
// that lives as long as a share record.
func (s *Service) ExportLink(ctx context.Context, input ExportInput) (blob.Object, error) {
	if s.blobs == nil {
		return blob.Object{}, blob.ErrNotConfigured
	}
	input.Format = export.FormatPNG
	result, err := s.Export(ctx, input)
	if err != nil {
		return blob.Object{}, err
	}
	return s.blobs.Upload(ctx, "exports", result.Data, result.MimeType, ".png", s.cfg.ShareTTL)
}

func (s *Service) Themes(text string, limit int) search.Response {
	return s.search.Search(search.Query{Text: text, Limit: limit})
}

// SharedPage renders the grid behind a share link, or a notice page that
// sends the viewer home when the link is unusable.
func (s *Service) SharedPage(ctx context.Context, params url.Values) (string, int) {
	doc, err := s.OpenShare(ctx, params)
	if err == nil {
		page, renderErr := export.RenderGridHTML(export.NewGridPage(doc, ""))
		if renderErr == nil {
			return page, http.StatusOK
		}
		err = renderErr
	}

	status, _, message, _ := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("shared page: %v", err)
	}
	notice, renderErr := export.RenderNoticeHTML(export.Notice{
		Title:        "グリッドを表示できません",
		Message:      message,
		Redirect:     "/",
		DelaySeconds: noticeDelaySeconds,
	})
	if renderErr != nil {
		log.Printf("shared page: render notice: %v", renderErr)
		return message, status
	}
	return notice, status
}

func (s *Service) HomePage() (string, error) {
	return export.RenderHomeHTML(export.NewHome())
}

// RunJanitor purges expired share records every CleanupInterval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.links.Cleanup(ctx)
			if err != nil {
				log.Printf("janitor: cleanup failed: %v", err)
				continue
			}
			if purged > 0 {
				log.Printf("janitor: purged %d expired share records", purged)
			}
		}
	}
}

// Close flushes every open draft.
func (s *Service) Close() {
	s.draftsMu.Lock()
	drafts := s.drafts
	s.drafts = make(map[string]*grid.Editor)
	s.draftsMu.Unlock()
	for _, editor := range drafts {
		editor.Close()
	}
}

// editor returns the open editor for a draft, reopening it from its latest
// snapshot after a restart.
func (s *Service) editor(draftID string) (*grid.Editor, error) {
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	if editor, ok := s.drafts[draftID]; ok {
		return editor, nil
	}
	snap, _, err := s.snapshots.Latest(draftID)
	if err != nil {
		if errors.Is(err, snapshot.ErrInvalidDraftID) || errors.Is(err, snapshot.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load draft %s: %w", draftID, err)
	}
	snap.Document.ID = draftID
	editor := s.newEditor(snap.Document)
	s.drafts[draftID] = editor
	return editor, nil
}

func (s *Service) newEditor(doc grid.Document) *grid.Editor {
	draftID := doc.ID
	return grid.NewEditor(doc, grid.EditorOptions{
		AutosaveDelay: s.cfg.AutosaveDelay,
		Save: func(snap grid.Snapshot) {
			if _, _, err := s.snapshots.Save(draftID, snap, "Auto-save"); err != nil {
				log.Printf("drafts: autosave %s failed: %v", draftID, err)
			}
		},
	})
}

func viewOf(draftID string, editor *grid.Editor) DraftView {
	doc := editor.Document()
	return DraftView{
		ID:         draftID,
		Document:   doc,
		Complete:   editor.Complete(),
		HasContent: doc.HasContent(),
	}
}
