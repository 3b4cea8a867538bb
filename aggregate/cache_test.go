package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/docserve/content"
)

func writeFile(t *testing.T, root, rel, body string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func newTestCache(t *testing.T, root string) *Cache {
	t.Helper()
	cc := content.New(content.NewMarkdownRenderer())
	return New(root, "Test Site", cc)
}

func TestFullDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "---\ntitle: X Page\n---\n# X\n\nAbout x.\n")
	writeFile(t, root, "guides/y.md", "# Y\n\nAbout y.\n")

	c := newTestCache(t, root)
	text, err := c.Full(context.Background())
	require.NoError(t, err)

	require.Contains(t, text, "# Test Site")
	require.Contains(t, text, "- [X Page](/x): About x.")
	require.Contains(t, text, "- [Y](/guides/y): About y.")
	require.Contains(t, text, "## x.md")
	require.Contains(t, text, "## guides/y.md")
	require.Contains(t, text, "About x.")
	// Frontmatter is stripped from the body blocks.
	require.NotContains(t, text, "title: X Page")
}

func TestIdempotentHit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "# X\n")

	c := newTestCache(t, root)
	ctx := context.Background()

	first, err := c.Full(ctx)
	require.NoError(t, err)
	second, err := c.Full(ctx)
	require.NoError(t, err)

	require.Equal(t, first, second)
	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(1), stats.Rebuilds)
}

func TestDeleteInvalidates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "# X\n\nKeep me.\n")
	yPath := writeFile(t, root, "y.md", "# Y\n\nDelete me.\n")

	c := newTestCache(t, root)
	ctx := context.Background()

	before, err := c.Full(ctx)
	require.NoError(t, err)
	require.Contains(t, before, "Delete me.")

	require.NoError(t, os.Remove(yPath))

	after, err := c.Full(ctx)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.NotContains(t, after, "Delete me.")
	require.Contains(t, after, "Keep me.")
}

func TestEditInvalidates(t *testing.T) {
	root := t.TempDir()
	xPath := writeFile(t, root, "x.md", "# X\n\nOld body.\n")

	c := newTestCache(t, root)
	ctx := context.Background()

	before, err := c.Full(ctx)
	require.NoError(t, err)

	writeFile(t, root, "x.md", "# X\n\nNew body.\n")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(xPath, future, future))

	after, err := c.Full(ctx)
	require.NoError(t, err)
	require.Contains(t, after, "New body.")
	require.NotEqual(t, before, after)
}

func TestExcludedFilesDoNotInvalidate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "# X\n")

	c := newTestCache(t, root)
	ctx := context.Background()

	_, err := c.Full(ctx)
	require.NoError(t, err)

	// Touching hidden and nav files must leave the entry valid.
	writeFile(t, root, "_nav.yml", "changed")
	writeFile(t, root, "_drafts/wip.md", "secret draft")

	text, err := c.Full(ctx)
	require.NoError(t, err)
	require.NotContains(t, text, "secret draft")
	require.Equal(t, int64(1), c.Stats().Hits)
}

func TestSectionIsolation(t *testing.T) {
	root := t.TempDir()
	guidesPath := writeFile(t, root, "guides/a.md", "# Guide A\n")
	writeFile(t, root, "api/ref.md", "# API Ref\n")

	c := newTestCache(t, root)
	ctx := context.Background()

	guides, err := c.Sections(ctx, []string{"guides"})
	require.NoError(t, err)
	require.Contains(t, guides, "Guide A")
	require.NotContains(t, guides, "API Ref")

	api, err := c.Sections(ctx, []string{"api"})
	require.NoError(t, err)
	require.Contains(t, api, "API Ref")

	// Invalidating guides content must not force recomputation of api.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(guidesPath, future, future))

	rebuildsBefore := c.Stats().Rebuilds
	_, err = c.Sections(ctx, []string{"api"})
	require.NoError(t, err)
	require.Equal(t, rebuildsBefore, c.Stats().Rebuilds)

	_, err = c.Sections(ctx, []string{"guides"})
	require.NoError(t, err)
	require.Equal(t, rebuildsBefore+1, c.Stats().Rebuilds)
}

func TestSectionKeyOrderIndependent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guides/a.md", "# A\n")
	writeFile(t, root, "api/ref.md", "# Ref\n")

	c := newTestCache(t, root)
	ctx := context.Background()

	_, err := c.Sections(ctx, []string{"guides", "api"})
	require.NoError(t, err)
	_, err = c.Sections(ctx, []string{"api", "guides"})
	require.NoError(t, err)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Rebuilds, "orderings of one set share an entry")
	require.Equal(t, 1, stats.Entries)
}

func TestBadFileSkippedWithoutFailing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.md", "# Good\n")
	writeFile(t, root, "bad.md", "---\ntitle: [unclosed\n---\nbody\n")

	c := newTestCache(t, root)
	text, err := c.Full(context.Background())
	require.NoError(t, err)
	require.Contains(t, text, "## good.md")
	require.NotContains(t, text, "## bad.md")
}

func TestInvalidateAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "# X\n")

	c := newTestCache(t, root)
	ctx := context.Background()

	_, err := c.Full(ctx)
	require.NoError(t, err)
	c.InvalidateAll()
	require.Equal(t, 0, c.Stats().Entries)

	_, err = c.Full(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), c.Stats().Rebuilds)
}
