// Package export renders grid documents as HTML pages, PNG images and XLSX
// workbooks.
package export

import (
	"errors"

	"gridshare/api/internal/grid"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPNG  Format = "png"
	FormatXLSX Format = "xlsx"
)

func (f Format) Valid() bool {
	switch f {
	case FormatHTML, FormatPNG, FormatXLSX:
		return true
	}
	return false
}

// Request contains parameters for an export operation
type Request struct {
	Document grid.Document
	Format   Format
	// ShareURL is printed under the grid when set.
	ShareURL string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for formats other than html, png and xlsx.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPNGDependencyMissing indicates no headless Chrome binary is installed.
	ErrPNGDependencyMissing = errors.New("export png dependency missing")
)
