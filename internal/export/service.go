package export

import (
	"context"
	"fmt"
	"strings"

	"gridshare/api/internal/grid"
)

// PNGRenderer rasterizes a rendered grid page.
type PNGRenderer func(ctx context.Context, html string) ([]byte, error)

// Service provides grid export functionality
type Service struct {
	renderPNG PNGRenderer
}

// NewService creates an export service backed by headless Chrome for PNG.
func NewService() *Service {
	return &Service{renderPNG: renderPNG}
}

// NewServiceWithRenderer swaps the PNG renderer.
func NewServiceWithRenderer(png PNGRenderer) *Service {
	return &Service{renderPNG: png}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if !req.Format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	doc := req.Document.Clone()
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	filename := sanitizeFilename(doc)

	if req.Format == FormatXLSX {
		data, err := renderXLSX(doc)
		if err != nil {
			return nil, fmt.Errorf("render xlsx: %w", err)
		}
		return &Result{
			Data:     data,
			Filename: filename + ".xlsx",
			MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		}, nil
	}

	html, err := RenderGridHTML(NewGridPage(doc, req.ShareURL))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	if req.Format == FormatHTML {
		return &Result{Data: []byte(html), Filename: filename + ".html", MimeType: "text/html; charset=utf-8"}, nil
	}

	png, err := s.renderPNG(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Data: png, Filename: filename + ".png", MimeType: "image/png"}, nil
}

// sanitizeFilename creates a safe ASCII filename for a grid
func sanitizeFilename(doc grid.Document) string {
	var b strings.Builder
	for _, r := range doc.Nickname {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	name := b.String()
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		return fmt.Sprintf("grid-%dx%d", doc.Size, doc.Size)
	}
	return fmt.Sprintf("%s-grid-%dx%d", name, doc.Size, doc.Size)
}
