// Package content provides the file content cache: one entry per source
// file, valid while the file's modification time is unchanged.
package content

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested source file does not exist.
// A file deleted after an earlier cache population also surfaces as
// ErrNotFound, never as a stale hit.
var ErrNotFound = errors.New("content not found")

// ParseError wraps a renderer failure for a single file. One file's parse
// failure never affects other files' cache entries.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Heading is one table-of-contents entry.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id"`
}

// Artifact is the parsed output of one source file.
type Artifact struct {
	// Title comes from frontmatter, else the first H1, else the filename.
	Title string
	// HTML is the rendered page body.
	HTML string
	// TOC lists the document headings in order.
	TOC []Heading
	// Frontmatter holds the decoded YAML frontmatter, nil when absent.
	Frontmatter map[string]any
	// Raw is the full source, including frontmatter.
	Raw string
	// Body is the Markdown source with frontmatter stripped.
	Body string
	// Summary is the plain text of the first paragraph, used for index
	// lines in the aggregate context document.
	Summary string
}

// Renderer turns a source file into an Artifact. Implementations are pure
// functions over the file bytes and hold no cache state of their own.
type Renderer interface {
	Render(ctx context.Context, path string) (*Artifact, error)
}
