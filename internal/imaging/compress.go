// Package imaging shrinks uploaded photos into small JPEG data URLs that can
// be embedded in a grid cell.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/nfnt/resize"
)

const (
	DefaultMaxDimension = 300
	DefaultQuality      = 70
	// MaxInputBytes bounds what Compress will read from an upload.
	MaxInputBytes = 10 << 20
)

var (
	ErrTooLarge       = errors.New("image exceeds upload limit")
	ErrUnsupported    = errors.New("unsupported image format")
	ErrInvalidDataURL = errors.New("invalid data URL")
)

type Options struct {
	MaxDimension uint
	Quality      int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension == 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Compress decodes a JPEG, PNG or GIF, fits it inside a MaxDimension square
// keeping its aspect ratio, flattens transparency onto white and returns a
// data:image/jpeg;base64 URL.
func Compress(r io.Reader, opts Options) (string, error) {
	opts = opts.withDefaults()

	raw, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(raw) > MaxInputBytes {
		return "", ErrTooLarge
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	thumb := resize.Thumbnail(opts.MaxDimension, opts.MaxDimension, img, resize.Lanczos3)

	canvas := image.NewRGBA(thumb.Bounds())
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), thumb, thumb.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return EncodeDataURL("image/jpeg", buf.Bytes()), nil
}

func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into its media type and bytes.
func ParseDataURL(value string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(value, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 || mimeType == "" {
		return "", nil, ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mimeType, data, nil
}
