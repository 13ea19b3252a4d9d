// Package share turns grid documents into share URLs and back.
//
// Small text-only grids travel inline as ?data=<payload>. Grids with photos,
// or whose JSON exceeds the inline limit, are stored out-of-band and travel
// as ?id=<short id>.
package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"gridshare/api/internal/codec"
	"gridshare/api/internal/grid"
)

const DefaultInlineLimit = 1000

var (
	// ErrNoPayload means the URL carries neither an id nor a data parameter.
	ErrNoPayload = errors.New("share: no id or data parameter")
	// ErrInvalidDocument wraps a payload that decoded but is not a usable grid.
	ErrInvalidDocument = errors.New("share: invalid grid document")
)

// Transport is how a document travels in a share URL.
type Transport string

const (
	TransportInline Transport = "inline"
	TransportStored Transport = "id"
)

// Links is the out-of-band store for large documents.
type Links interface {
	Save(ctx context.Context, v any) (string, error)
	Get(ctx context.Context, id string) (json.RawMessage, error)
}

// Link is a generated share URL.
type Link struct {
	URL       string    `json:"url"`
	Transport Transport `json:"transport"`
	ID        string    `json:"id,omitempty"`
	// Degraded is set when storage failed and the document was inlined instead.
	Degraded bool `json:"degraded,omitempty"`
}

type Options struct {
	InlineLimit int
}

type Resolver struct {
	links       Links
	inlineLimit int
}

// NewResolver builds a resolver. links may be nil, in which case every
// share is inlined.
func NewResolver(links Links, opts Options) *Resolver {
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = DefaultInlineLimit
	}
	return &Resolver{links: links, inlineLimit: opts.InlineLimit}
}

// ShareURL always inlines the document.
func ShareURL(baseURL string, doc grid.Document) (string, error) {
	payload, err := codec.Encode(doc)
	if err != nil {
		return "", err
	}
	return withParam(baseURL, "data", payload), nil
}

// NeedsStorage reports whether doc should go out-of-band.
func (r *Resolver) NeedsStorage(doc grid.Document) (bool, error) {
	if doc.HasImages() {
		return true, nil
	}
	raw, err := codec.Marshal(doc)
	if err != nil {
		return false, err
	}
	return len(raw) > r.inlineLimit, nil
}

// ShortShareURL picks the transport for doc. A storage failure never blocks
// sharing: the document is inlined instead and the link marked Degraded.
func (r *Resolver) ShortShareURL(ctx context.Context, baseURL string, doc grid.Document) (Link, error) {
	large, err := r.NeedsStorage(doc)
	if err != nil {
		return Link{}, err
	}
	if large && r.links != nil {
		id, err := r.links.Save(ctx, doc)
		if err == nil {
			return Link{URL: withParam(baseURL, "id", id), Transport: TransportStored, ID: id}, nil
		}
		log.Printf("share: storing document failed, inlining instead: %v", err)
	}

	inline, err := ShareURL(baseURL, doc)
	if err != nil {
		return Link{}, err
	}
	return Link{URL: inline, Transport: TransportInline, Degraded: large}, nil
}

// Resolve recovers the document from share URL query parameters. id takes
// precedence over data. Store errors (not found, unavailable) and codec
// decode errors are returned as is.
func (r *Resolver) Resolve(ctx context.Context, params url.Values) (grid.Document, error) {
	var doc grid.Document

	if id := strings.TrimSpace(params.Get("id")); id != "" {
		if r.links == nil {
			return doc, ErrNoPayload
		}
		raw, err := r.links.Get(ctx, id)
		if err != nil {
			return doc, err
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return doc, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	} else if data := params.Get("data"); strings.TrimSpace(data) != "" {
		if err := codec.Decode(data, &doc); err != nil {
			return doc, err
		}
	} else {
		return doc, ErrNoPayload
	}

	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return grid.Document{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return doc, nil
}

// ResolveURL is Resolve for a full share URL.
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (grid.Document, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return grid.Document{}, fmt.Errorf("parse share url: %w", err)
	}
	return r.Resolve(ctx, u.Query())
}

func withParam(baseURL, key, value string) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + key + "=" + url.QueryEscape(value)
}
