// Package images provides the image derivative cache: resized or
// re-encoded copies of source images persisted as files on disk. A
// derivative is valid while it is newer than its source; no in-memory
// record is kept.
package images

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxDimension clamps requested widths and heights.
const MaxDimension = 4096

// Format is a target image encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
)

// Transform describes a requested image derivative. Zero fields mean
// "parameter absent".
type Transform struct {
	Width   int
	Height  int
	Quality int
	Format  Format
}

// IsZero reports whether no transform was requested.
func (t Transform) IsZero() bool {
	return t == Transform{}
}

// ParseTransform reads w, h, q and format query parameters. Out-of-range
// and non-numeric values are treated as absent, never as an error; width
// and height are clamped to MaxDimension and quality to 100.
func ParseTransform(q url.Values) Transform {
	t := Transform{
		Width:   parseDimension(q.Get("w")),
		Height:  parseDimension(q.Get("h")),
		Quality: parseQuality(q.Get("q")),
	}
	switch Format(strings.ToLower(q.Get("format"))) {
	case FormatJPEG:
		t.Format = FormatJPEG
	case FormatPNG:
		t.Format = FormatPNG
	case FormatGIF:
		t.Format = FormatGIF
	case Format("jpg"):
		t.Format = FormatJPEG
	}
	return t
}

func parseDimension(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return min(n, MaxDimension)
}

func parseQuality(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return min(n, 100)
}

// encode returns the canonical parameter encoding used in derivative
// filenames, e.g. "w640_h480_q85". Absent parameters are omitted; the
// w, h, q order is fixed so one transform maps to exactly one name.
func (t Transform) encode() string {
	var parts []string
	if t.Width > 0 {
		parts = append(parts, fmt.Sprintf("w%d", t.Width))
	}
	if t.Height > 0 {
		parts = append(parts, fmt.Sprintf("h%d", t.Height))
	}
	if t.Quality > 0 {
		parts = append(parts, fmt.Sprintf("q%d", t.Quality))
	}
	return strings.Join(parts, "_")
}

// ext returns the derivative file extension: the target format's if one
// was requested, else the source file's.
func (t Transform) ext(sourcePath string) string {
	switch t.Format {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatGIF:
		return ".gif"
	}
	return filepath.Ext(sourcePath)
}

// DerivativePath returns the path of the derivative for (source, transform)
// under cacheDir. The name derives deterministically from the source base
// name and the canonical parameter encoding.
func DerivativePath(cacheDir, sourcePath string, t Transform) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(cacheDir, base+"."+t.encode()+t.ext(sourcePath))
}

// ContentType returns the MIME type for a derivative path.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
