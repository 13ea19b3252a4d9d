// Package grid holds the shareable grid document and its edit lifecycle.
package grid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinSize        = 2
	MaxSize        = 10
	DefaultSize    = 3
	DefaultBgColor = "#FF8B25"
)

var (
	ErrInvalidSize     = fmt.Errorf("grid size must be between %d and %d", MinSize, MaxSize)
	ErrIndexOutOfRange = errors.New("cell index out of range")
	ErrIncomplete      = errors.New("grid has empty sections")
	ErrInvalidImage    = errors.New("image must be an image data URL")
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Section is the theme label of one cell. An empty title marks the cell as incomplete.
type Section struct {
	Title string `json:"title"`
}

// Document is the canonical shareable grid. Sections are row-major:
// index i is row i/Size, column i%Size.
type Document struct {
	ID              string            `json:"id,omitempty"`
	Size            int               `json:"size"`
	Sections        []Section         `json:"sections"`
	BgColor         string            `json:"bgColor"`
	Nickname        string            `json:"nickname,omitempty"`
	CreatorNickname string            `json:"creatorNickname,omitempty"`
	Images          map[string]string `json:"images,omitempty"`
}

// Snapshot is a locally persisted draft: the document plus the save time (epoch ms).
type Snapshot struct {
	Document
	Timestamp int64 `json:"timestamp"`
}

// ValidationError describes the first invalid field of a document.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CellCount returns size*size.
func (d Document) CellCount() int {
	return d.Size * d.Size
}

// Position maps a cell index to its row and column.
func (d Document) Position(index int) (row, col int) {
	if d.Size <= 0 {
		return 0, 0
	}
	return index / d.Size, index % d.Size
}

// InRange reports whether index addresses a cell.
func (d Document) InRange(index int) bool {
	return index >= 0 && index < len(d.Sections)
}

// IsComplete reports whether every section has a non-blank title.
func (d Document) IsComplete() bool {
	if len(d.Sections) == 0 {
		return false
	}
	for _, section := range d.Sections {
		if strings.TrimSpace(section.Title) == "" {
			return false
		}
	}
	return true
}

// HasContent reports whether any section has a title or any cell has a photo.
func (d Document) HasContent() bool {
	for _, section := range d.Sections {
		if strings.TrimSpace(section.Title) != "" {
			return true
		}
	}
	return len(d.Images) > 0
}

// HasImages reports whether at least one cell carries a photo.
func (d Document) HasImages() bool {
	return len(d.Images) > 0
}

// Image returns the photo of a cell, if any.
func (d Document) Image(index int) (string, bool) {
	img, ok := d.Images[strconv.Itoa(index)]
	return img, ok
}

// Validate checks the structural invariants of a document.
func (d Document) Validate() error {
	if d.Size < MinSize || d.Size > MaxSize {
		return &ValidationError{Field: "size", Message: ErrInvalidSize.Error()}
	}
	if len(d.Sections) != d.CellCount() {
		return &ValidationError{
			Field:   "sections",
			Message: fmt.Sprintf("expected %d sections, got %d", d.CellCount(), len(d.Sections)),
		}
	}
	if d.BgColor != "" && !hexColor.MatchString(d.BgColor) {
		return &ValidationError{Field: "bgColor", Message: "must be a hex color"}
	}
	for key, img := range d.Images {
		index, err := strconv.Atoi(key)
		if err != nil || !d.InRange(index) {
			return &ValidationError{Field: "images", Message: fmt.Sprintf("invalid cell index %q", key)}
		}
		if !isImageDataURL(img) {
			return &ValidationError{Field: "images." + key, Message: ErrInvalidImage.Error()}
		}
	}
	return nil
}

// Normalize fills defaults on a document received from outside: a missing
// background color, and drops images whose key is not a cell of the grid.
func (d *Document) Normalize() {
	if strings.TrimSpace(d.BgColor) == "" {
		d.BgColor = DefaultBgColor
	}
	for key := range d.Images {
		if index, err := strconv.Atoi(key); err != nil || !d.InRange(index) {
			delete(d.Images, key)
		}
	}
	if len(d.Images) == 0 {
		d.Images = nil
	}
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	cp := d
	cp.Sections = append([]Section(nil), d.Sections...)
	if d.Images != nil {
		cp.Images = make(map[string]string, len(d.Images))
		for k, v := range d.Images {
			cp.Images[k] = v
		}
	}
	return cp
}

// SetSection replaces the title of a cell. Returns false if out of bounds.
// The title is stored as given; an empty string is a valid incomplete state.
func (d *Document) SetSection(index int, title string) bool {
	if !d.InRange(index) {
		return false
	}
	d.Sections[index].Title = title
	return true
}

// SetImage attaches a photo (image data URL) to a cell.
func (d *Document) SetImage(index int, dataURL string) error {
	if !d.InRange(index) {
		return ErrIndexOutOfRange
	}
	if !isImageDataURL(dataURL) {
		return ErrInvalidImage
	}
	if d.Images == nil {
		d.Images = make(map[string]string)
	}
	d.Images[strconv.Itoa(index)] = dataURL
	return nil
}

// RemoveImage detaches the photo of a cell. Returns false if there was none.
func (d *Document) RemoveImage(index int) bool {
	key := strconv.Itoa(index)
	if _, ok := d.Images[key]; !ok {
		return false
	}
	delete(d.Images, key)
	if len(d.Images) == 0 {
		d.Images = nil
	}
	return true
}

func isImageDataURL(value string) bool {
	if !strings.HasPrefix(value, "data:image/") {
		return false
	}
	comma := strings.IndexByte(value, ',')
	return comma > 0 && comma < len(value)-1
}
