package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gridshare/api/internal/imaging"
	"gridshare/api/internal/util"
)

// maxUploadBytes leaves room for multipart framing around one image.
const maxUploadBytes = imaging.MaxInputBytes + 1<<20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	isRead := r.Method == http.MethodGet || r.Method == http.MethodHead

	if isRead && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if isRead && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := s.service.Ping(ctx)
		status := "ready"
		statusCode := http.StatusOK
		if !health.Ready() {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     health.Ready(),
			"status": status,
			"checks": map[string]any{
				"primary":  tierCheck(health.Primary),
				"fallback": tierCheck(health.Fallback),
			},
		})
		return
	}

	if isRead && r.URL.Path == "/" {
		page, err := s.service.HomePage()
		if err != nil {
			log.Printf("home page: %v", err)
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
			return
		}
		writeHTML(w, http.StatusOK, page)
		return
	}

	if isRead && r.URL.Path == "/shared.html" {
		page, status := s.service.SharedPage(r.Context(), r.URL.Query())
		writeHTML(w, status, page)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/themes" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, s.service.Themes(r.URL.Query().Get("q"), limit))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/images" {
		file, closeFile, ok := readImageUpload(w, r)
		if !ok {
			return
		}
		defer closeFile()
		dataURL, err := s.service.CompressImage(file)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dataUrl": dataURL})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/export" {
		var body ExportInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Export(r.Context(), body)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/export/link" {
		var body ExportInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		object, err := s.service.ExportLink(r.Context(), body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, object)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "share" {
		s.handleShare(w, r, parts[2:])
		return
	}
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "drafts" {
		s.handleDrafts(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleShare(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body ShareInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		link, err := s.service.Share(r.Context(), body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)

	case len(parts) == 0 && r.Method == http.MethodGet:
		doc, err := s.service.OpenShare(r.Context(), r.URL.Query())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": doc})

	case len(parts) == 1 && parts[0] == "email" && r.Method == http.MethodPost:
		var body EmailInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.EmailShare(body); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteShare(r.Context(), parts[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDrafts(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			ids, err := s.service.ListDrafts()
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": ids})
		case http.MethodPost:
			var body struct {
				Size  int `json:"size"`
				Share *struct {
					ID   string `json:"id"`
					Data string `json:"data"`
				} `json:"share"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			var view DraftView
			var err error
			if body.Share != nil {
				params := url.Values{}
				if body.Share.ID != "" {
					params.Set("id", body.Share.ID)
				}
				if body.Share.Data != "" {
					params.Set("data", body.Share.Data)
				}
				view, err = s.service.DraftFromShare(r.Context(), params)
			} else {
				view, err = s.service.CreateDraft(body.Size)
			}
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	draftID := parts[0]
	rest := parts[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		view, err := s.service.GetDraft(draftID)
		s.respond(w, view, err)

	case len(rest) == 0 && r.Method == http.MethodDelete:
		if err := s.service.DeleteDraft(draftID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 2 && rest[0] == "sections" && r.Method == http.MethodPut:
		index, ok := parseIndex(w, rest[1])
		if !ok {
			return
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateSection(draftID, index, body.Title)
		s.respond(w, view, err)

	case len(rest) == 1 && rest[0] == "settings" && r.Method == http.MethodPut:
		var body SettingsInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateSettings(draftID, body)
		s.respond(w, view, err)

	case len(rest) == 1 && rest[0] == "size" && r.Method == http.MethodPut:
		var body struct {
			Size    int  `json:"size"`
			Confirm bool `json:"confirm"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.ResizeDraft(draftID, body.Size, body.Confirm)
		s.respond(w, view, err)

	case len(rest) == 2 && rest[0] == "images" && r.Method == http.MethodPost:
		index, ok := parseIndex(w, rest[1])
		if !ok {
			return
		}
		file, closeFile, ok := readImageUpload(w, r)
		if !ok {
			return
		}
		defer closeFile()
		view, err := s.service.SetDraftImage(draftID, index, file)
		s.respond(w, view, err)

	case len(rest) == 2 && rest[0] == "images" && r.Method == http.MethodDelete:
		index, ok := parseIndex(w, rest[1])
		if !ok {
			return
		}
		view, err := s.service.RemoveDraftImage(draftID, index)
		s.respond(w, view, err)

	case len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		items, err := s.service.DraftHistory(draftID, limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case len(rest) == 2 && rest[0] == "history" && r.Method == http.MethodGet:
		snap, err := s.service.DraftRevision(draftID, rest[1])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) respond(w http.ResponseWriter, view DraftView, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTML(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, page)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func tierCheck(err error) map[string]any {
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok"}
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func parseIndex(w http.ResponseWriter, raw string) (int, bool) {
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INDEX", "Cell index must be a number", nil)
		return 0, false
	}
	return index, true
}

// readImageUpload returns the "image" part of a multipart request.
func readImageUpload(w http.ResponseWriter, r *http.Request) (multipart.File, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "Image exceeds the upload limit", nil)
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected a multipart image upload", nil)
		return nil, nil, false
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing image field", nil)
		return nil, nil, false
	}
	return file, func() {
		_ = file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}, true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
