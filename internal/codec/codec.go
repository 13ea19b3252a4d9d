// Package codec converts JSON documents to and from a single URL-safe ASCII
// payload suitable for a query parameter.
//
// The payload is the standard padded base64 encoding of the UTF-8 JSON text.
// Callers escape it once more (url.QueryEscape) before placing it in a URL,
// because '+', '/' and '=' are not query-safe verbatim.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Stage names the decode step that failed.
type Stage string

const (
	StageInput    Stage = "input"
	StageUnescape Stage = "unescape"
	StageBase64   Stage = "base64"
	StageUTF8     Stage = "utf8"
	StageJSON     Stage = "json"
)

var (
	// ErrSerialization is returned by Encode when the value cannot be
	// represented as JSON (channels, functions, cycles, NaN).
	ErrSerialization = errors.New("codec: value is not JSON-serializable")
	// ErrEmptyInput is the cause of a DecodeError for blank payloads.
	ErrEmptyInput = errors.New("codec: empty payload")
	// ErrInvalidUTF8 is the cause of a DecodeError when the decoded bytes are not UTF-8.
	ErrInvalidUTF8 = errors.New("codec: payload is not valid UTF-8")
)

// DecodeError reports a failed decode and the step it failed at.
type DecodeError struct {
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("codec: decode failed at %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Marshal is json.Marshal without HTML escaping: '&', '<' and '>' stay one
// byte each, as in any browser's JSON text.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Encode serializes v to JSON and returns its base64 payload.
func Encode(v any) (string, error) {
	raw, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return EncodeJSON(raw), nil
}

// EncodeJSON returns the payload for JSON text that is already serialized.
func EncodeJSON(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode parses payload into target. It accepts the payload as it appears in
// a raw query string (still percent-escaped) or after a single round of
// query decoding, which browsers and net/url both apply.
func Decode(payload string, target any) error {
	raw, err := DecodeJSON(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &DecodeError{Stage: StageJSON, Err: err}
	}
	return nil
}

// DecodeJSON reverses Encode up to, and including, JSON validation and
// returns the JSON text.
func DecodeJSON(payload string) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, &DecodeError{Stage: StageInput, Err: ErrEmptyInput}
	}
	// Spaces may stand in for '+', so only line breaks are trimmed.
	payload = strings.Trim(payload, "\r\n\t")

	// Early links carried the JSON text itself, and it is taken verbatim:
	// a '%' inside it is content, not an escape.
	if !looksLikeJSON(payload) && strings.Contains(payload, "%") {
		// Base64 never contains '%', so its presence means one escaping layer is left.
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, &DecodeError{Stage: StageUnescape, Err: err}
		}
		payload = unescaped
	}

	var raw []byte
	if looksLikeJSON(payload) {
		raw = []byte(payload)
	} else {
		// Form decoding turns '+' into ' '.
		decoded, err := decodeBase64(strings.ReplaceAll(payload, " ", "+"))
		if err != nil {
			return nil, &DecodeError{Stage: StageBase64, Err: err}
		}
		raw = decoded
	}

	if !utf8.Valid(raw) {
		return nil, &DecodeError{Stage: StageUTF8, Err: ErrInvalidUTF8}
	}
	if !json.Valid(raw) {
		var v any
		err := json.Unmarshal(raw, &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return nil, &DecodeError{Stage: StageJSON, Err: err}
	}
	return raw, nil
}

func decodeBase64(payload string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return decoded, nil
	}
	// Some share targets strip the trailing '=' padding.
	if trimmed := strings.TrimRight(payload, "="); trimmed != payload || len(payload)%4 != 0 {
		if decoded, rawErr := base64.RawStdEncoding.DecodeString(trimmed); rawErr == nil {
			return decoded, nil
		}
	}
	return nil, err
}

func looksLikeJSON(payload string) bool {
	trimmed := bytes.TrimSpace([]byte(payload))
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}
