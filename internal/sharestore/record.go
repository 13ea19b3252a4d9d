// Package sharestore keeps shared grid documents behind short, expiring ids.
// A primary SQL tier is tried first; a key-value tier (Redis or in-process)
// takes over when the primary cannot serve.
package sharestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound covers both missing and expired records.
	ErrNotFound = errors.New("share record not found")
	// ErrIDConflict is returned by a backend when the id is already taken.
	ErrIDConflict = errors.New("share id already exists")
)

// StorageUnavailableError is returned when no tier could serve a call.
type StorageUnavailableError struct {
	Primary  error
	Fallback error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("share storage unavailable: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *StorageUnavailableError) Unwrap() []error {
	var errs []error
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// Record is the stored shape. Timestamps are epoch milliseconds.
type Record struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	ExpiresAt int64           `json:"expiresAt"`
}

func (r Record) Expired(now time.Time) bool {
	return now.UnixMilli() > r.ExpiresAt
}

// TTL is the lifetime the record was created with.
func (r Record) TTL() time.Duration {
	return time.Duration(r.ExpiresAt-r.Timestamp) * time.Millisecond
}
