// Package settings provides the directory settings cache. Each content
// directory may carry a _dir.yml file describing how its pages are
// presented; resolution never fails, falling back to defaults.
package settings

import (
	"gopkg.in/yaml.v3"
)

// FileName is the per-directory settings file.
const FileName = "_dir.yml"

// DefaultLayoutEnv is the environment variable consulted for the tree
// root's layout when no settings file is present there.
const DefaultLayoutEnv = "DOCSERVE_DEFAULT_LAYOUT"

// Layout selects how a directory's pages are presented.
type Layout string

const (
	LayoutDocs  Layout = "docs"
	LayoutBlog  Layout = "blog"
	LayoutPlain Layout = "plain"
)

// valid reports whether the layout is one of the known kinds.
func (l Layout) valid() bool {
	switch l {
	case LayoutDocs, LayoutBlog, LayoutPlain:
		return true
	}
	return false
}

// Hero describes the optional hero block at the top of a directory index.
type Hero struct {
	Heading string `yaml:"heading"`
	Tagline string `yaml:"tagline"`
	Image   string `yaml:"image"`
}

// Settings is the resolved behavior for one directory.
type Settings struct {
	Layout     Layout `yaml:"layout"`
	Title      string `yaml:"title"`
	PageSize   int    `yaml:"page_size"`
	DateFormat string `yaml:"date_format"`
	Hero       Hero   `yaml:"hero"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Layout:     LayoutDocs,
		PageSize:   10,
		DateFormat: "2006-01-02",
	}
}

// parse decodes a settings file over the defaults. Unknown layouts and
// non-positive page sizes fall back to their defaults rather than erroring.
func parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), err
	}
	if !s.Layout.valid() {
		s.Layout = LayoutDocs
	}
	if s.PageSize <= 0 {
		s.PageSize = Default().PageSize
	}
	if s.DateFormat == "" {
		s.DateFormat = Default().DateFormat
	}
	return s, nil
}
