package app

import (
	"errors"
	"fmt"
	"net/http"

	"gridshare/api/internal/blob"
	"gridshare/api/internal/codec"
	"gridshare/api/internal/email"
	"gridshare/api/internal/export"
	"gridshare/api/internal/grid"
	"gridshare/api/internal/imaging"
	"gridshare/api/internal/share"
	"gridshare/api/internal/sharestore"
	"gridshare/api/internal/snapshot"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Share failures send the viewer back to the home page.
var homeRedirect = map[string]any{"redirect": "/"}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validationErr *grid.ValidationError
	var decodeErr *codec.DecodeError
	var unavailable *sharestore.StorageUnavailableError
	switch {
	// Checked first: a bad shared grid also wraps its ValidationError.
	case errors.Is(err, share.ErrInvalidDocument):
		return http.StatusBadRequest, "INVALID_SHARE_DATA", "Share link does not contain a valid grid", homeRedirect
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Error(), map[string]any{"field": validationErr.Field}
	case errors.Is(err, grid.ErrInvalidSize), errors.Is(err, grid.ErrIndexOutOfRange), errors.Is(err, grid.ErrInvalidImage):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, grid.ErrIncomplete):
		return http.StatusUnprocessableEntity, "INCOMPLETE_GRID", "Every section needs a title before sharing", nil

	case errors.Is(err, sharestore.ErrNotFound):
		return http.StatusNotFound, "SHARE_NOT_FOUND", "Shared grid not found or expired", homeRedirect
	case errors.Is(err, share.ErrNoPayload):
		return http.StatusBadRequest, "MISSING_SHARE_DATA", "Share link has no id or data", homeRedirect
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, "INVALID_SHARE_DATA", "Share link data is corrupted", map[string]any{"redirect": "/", "stage": decodeErr.Stage}
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Share storage is unavailable", nil
	case errors.Is(err, codec.ErrSerialization):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Document cannot be serialized", nil

	case errors.Is(err, snapshot.ErrInvalidDraftID):
		return http.StatusBadRequest, "INVALID_DRAFT_ID", "Draft id must be a UUID", nil
	case errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound, "DRAFT_NOT_FOUND", "Draft not found", nil

	case errors.Is(err, imaging.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "Image exceeds the upload limit", nil
	case errors.Is(err, imaging.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE", "Image format is not supported", nil

	case errors.Is(err, email.ErrNotConfigured):
		return http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email is not configured", nil
	case errors.Is(err, email.ErrNoRecipients):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "At least one recipient is required", nil
	case errors.Is(err, email.ErrBadRecipient):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil

	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Format must be html, png or xlsx", nil
	case errors.Is(err, export.ErrPNGDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PNG export is not available on this server", nil
	case errors.Is(err, blob.ErrNotConfigured):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Export storage is not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
