package docserve

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestWalkContentSortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guides/b.md", "b")
	writeFile(t, root, "guides/a.md", "a")
	writeFile(t, root, "index.md", "index")
	writeFile(t, root, "_nav.yml", "nav")
	writeFile(t, root, "guides/_dir.yml", "layout: docs")
	writeFile(t, root, ".hidden.md", "hidden")
	writeFile(t, root, "assets/logo.md", "not content")
	writeFile(t, root, "guides/notes.txt", "not markdown")

	files, err := WalkContent(root, nil)
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.Rel)
	}
	require.Equal(t, []string{"guides/a.md", "guides/b.md", "index.md"}, rels)
}

func TestWalkContentSectionScope(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guides/a.md", "a")
	writeFile(t, root, "api/ref.md", "ref")
	writeFile(t, root, "index.md", "index")

	files, err := WalkContent(root, []string{"guides"})
	require.NoError(t, err)

	require.Len(t, files, 1)
	require.Equal(t, "guides/a.md", files[0].Rel)
}

func TestFingerprintDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "x")
	writeFile(t, root, "y.md", "y")

	d1, err := Fingerprint(root)
	require.NoError(t, err)
	d2, err := Fingerprint(root)
	require.NoError(t, err)

	require.Equal(t, d1, d2)
	require.False(t, d1.IsZero())
}

func TestFingerprintSensitivity(t *testing.T) {
	root := t.TempDir()
	xPath := writeFile(t, root, "x.md", "x")
	yPath := writeFile(t, root, "y.md", "y")

	base, err := Fingerprint(root)
	require.NoError(t, err)

	// Editing a file (mtime change) changes the fingerprint.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(xPath, future, future))
	edited, err := Fingerprint(root)
	require.NoError(t, err)
	require.NotEqual(t, base, edited)

	// Deleting a file changes it again.
	require.NoError(t, os.Remove(yPath))
	deleted, err := Fingerprint(root)
	require.NoError(t, err)
	require.NotEqual(t, edited, deleted)

	// Adding a file changes it.
	writeFile(t, root, "z.md", "z")
	added, err := Fingerprint(root)
	require.NoError(t, err)
	require.NotEqual(t, deleted, added)
}

func TestFingerprintRenameChanges(t *testing.T) {
	root := t.TempDir()
	old := writeFile(t, root, "before.md", "content")

	base, err := Fingerprint(root)
	require.NoError(t, err)

	require.NoError(t, os.Rename(old, filepath.Join(root, "after.md")))
	renamed, err := Fingerprint(root)
	require.NoError(t, err)

	require.NotEqual(t, base, renamed)
}

func TestFingerprintIgnoresExcludedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.md", "page")

	base, err := Fingerprint(root)
	require.NoError(t, err)

	// Touching hidden, nav and asset files leaves the fingerprint alone.
	writeFile(t, root, "_nav.yml", "changed")
	writeFile(t, root, "_drafts/wip.md", "draft")
	writeFile(t, root, "images/new.png", "png")

	after, err := Fingerprint(root)
	require.NoError(t, err)
	require.Equal(t, base, after)
}

func TestFingerprintSectionIndependence(t *testing.T) {
	root := t.TempDir()
	guides := writeFile(t, root, "guides/a.md", "a")
	writeFile(t, root, "api/ref.md", "ref")

	apiBefore, err := Fingerprint(root, "api")
	require.NoError(t, err)
	guidesBefore, err := Fingerprint(root, "guides")
	require.NoError(t, err)

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(guides, future, future))

	apiAfter, err := Fingerprint(root, "api")
	require.NoError(t, err)
	guidesAfter, err := Fingerprint(root, "guides")
	require.NoError(t, err)

	require.Equal(t, apiBefore, apiAfter)
	require.NotEqual(t, guidesBefore, guidesAfter)
}

func TestQualifiesAsContent(t *testing.T) {
	require.True(t, QualifiesAsContent("page.md"))
	require.True(t, QualifiesAsContent("page.mdx"))
	require.False(t, QualifiesAsContent("_dir.yml"))
	require.False(t, QualifiesAsContent("_hidden.md"))
	require.False(t, QualifiesAsContent(".DS_Store"))
	require.False(t, QualifiesAsContent("photo.png"))
}
