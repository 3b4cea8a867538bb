package docserve

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HiddenPrefix marks files and directories that are excluded from content
// walks. Settings files (_dir.yml) and the navigation definition (_nav.yml)
// use it, as do authors hiding drafts.
const HiddenPrefix = "_"

// assetDirNames are directory names excluded from content walks. They hold
// images and other static files, never renderable pages.
var assetDirNames = map[string]bool{
	"assets": true,
	"images": true,
	"img":    true,
	"static": true,
}

// ContentFile is one qualifying file found by a content walk.
type ContentFile struct {
	// Path is the absolute path on disk.
	Path string
	// Rel is the slash-separated path relative to the content root.
	Rel string
	// ModTime is the file's last modification time.
	ModTime time.Time
}

// QualifiesAsContent reports whether a file name is part of the content set.
// Hidden files, dotfiles and non-Markdown files do not qualify.
func QualifiesAsContent(name string) bool {
	if strings.HasPrefix(name, HiddenPrefix) || strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".md" || ext == ".mdx"
}

// skipDir reports whether a directory (and everything under it) is excluded
// from content walks.
func skipDir(name string) bool {
	if strings.HasPrefix(name, HiddenPrefix) || strings.HasPrefix(name, ".") {
		return true
	}
	return assetDirNames[name]
}

// WalkContent walks the content tree under root and returns every qualifying
// file with its modification time, sorted by relative path. The sort makes
// the result independent of filesystem enumeration order.
//
// If sections is non-empty, only files under the named top-level directories
// are returned; root-level files are excluded from a scoped walk.
func WalkContent(root string, sections []string) ([]ContentFile, error) {
	var scope map[string]bool
	if len(sections) > 0 {
		scope = make(map[string]bool, len(sections))
		for _, s := range sections {
			scope[s] = true
		}
	}

	var files []ContentFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if skipDir(d.Name()) {
				return fs.SkipDir
			}
			if scope != nil && !scope[topLevel(rel)] {
				return fs.SkipDir
			}
			return nil
		}

		if !QualifiesAsContent(d.Name()) {
			return nil
		}
		if scope != nil && !scope[topLevel(rel)] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, ContentFile{
			Path:    path,
			Rel:     rel,
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking content root: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Rel < files[j].Rel
	})
	return files, nil
}

// Fingerprint computes the tree fingerprint for the content under root,
// optionally scoped to the named top-level sections. The digest covers each
// qualifying file's relative path and millisecond modification time, so any
// addition, deletion, rename or edit of a qualifying file changes it, while
// hidden and asset files do not affect it.
func Fingerprint(root string, sections ...string) (Digest, error) {
	files, err := WalkContent(root, sections)
	if err != nil {
		return Digest{}, err
	}
	return FingerprintFiles(files), nil
}

// FingerprintFiles computes the fingerprint digest over an already collected,
// sorted file list.
func FingerprintFiles(files []ContentFile) Digest {
	h := NewHasher()
	for _, f := range files {
		_, _ = h.Write([]byte(f.Rel))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(strconv.FormatInt(f.ModTime.UnixMilli(), 10)))
		_, _ = h.Write([]byte{'\n'})
	}
	return h.Sum()
}

// topLevel returns the first element of a slash-separated relative path.
func topLevel(rel string) string {
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}
