package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, root, dir, content string) {
	t.Helper()
	d := filepath.Join(root, filepath.FromSlash(dir))
	require.NoError(t, os.MkdirAll(d, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(d, FileName), []byte(content), 0644))
}

func TestResolveDefaults(t *testing.T) {
	root := t.TempDir()
	c := New()

	s := c.Resolve(context.Background(), root, "guides")
	require.Equal(t, LayoutDocs, s.Layout)
	require.Equal(t, 10, s.PageSize)
	require.Equal(t, "2006-01-02", s.DateFormat)
}

func TestResolveFromFile(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "blog", "layout: blog\ntitle: Engineering Blog\npage_size: 25\nhero:\n  heading: Welcome\n")
	c := New()

	s := c.Resolve(context.Background(), root, "blog")
	require.Equal(t, LayoutBlog, s.Layout)
	require.Equal(t, "Engineering Blog", s.Title)
	require.Equal(t, 25, s.PageSize)
	require.Equal(t, "Welcome", s.Hero.Heading)
	// Unset fields keep their defaults.
	require.Equal(t, "2006-01-02", s.DateFormat)
}

func TestResolveMalformedFileUsesDefaults(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "broken", "layout: [unclosed")
	c := New()

	s := c.Resolve(context.Background(), root, "broken")
	require.Equal(t, Default(), s)
}

func TestResolveUnknownLayoutFallsBack(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "odd", "layout: carousel\npage_size: -3\n")
	c := New()

	s := c.Resolve(context.Background(), root, "odd")
	require.Equal(t, LayoutDocs, s.Layout)
	require.Equal(t, 10, s.PageSize)
}

func TestEnvDefaultAppliesOnlyAtRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "guides"), 0755))

	env := func(key string) string {
		if key == DefaultLayoutEnv {
			return "blog"
		}
		return ""
	}
	c := New(WithEnv(env))

	ctx := context.Background()
	require.Equal(t, LayoutBlog, c.Resolve(ctx, root, "").Layout)
	require.Equal(t, LayoutDocs, c.Resolve(ctx, root, "guides").Layout)
}

func TestProductionEntriesNeverExpire(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "guides", "title: Before\n")

	reads := 0
	read := func(path string) ([]byte, error) {
		reads++
		return os.ReadFile(path)
	}
	c := New(WithReadFile(read))

	ctx := context.Background()
	require.Equal(t, "Before", c.Resolve(ctx, root, "guides").Title)

	// Even a changed file is not re-read in production.
	writeSettings(t, root, "guides", "title: After\n")
	require.Equal(t, "Before", c.Resolve(ctx, root, "guides").Title)
	require.Equal(t, 1, reads)
}

func TestDevModeTTLExpiry(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "guides", "title: Before\n")

	current := time.Now()
	clock := func() time.Time { return current }
	c := New(WithDevMode(true), WithClock(clock))

	ctx := context.Background()
	require.Equal(t, "Before", c.Resolve(ctx, root, "guides").Title)

	// Within the TTL the stale value is served, regardless of the file.
	writeSettings(t, root, "guides", "title: After\n")
	current = current.Add(devTTL / 2)
	require.Equal(t, "Before", c.Resolve(ctx, root, "guides").Title)

	// Past the TTL the entry is recomputed from disk.
	current = current.Add(devTTL)
	require.Equal(t, "After", c.Resolve(ctx, root, "guides").Title)
}

func TestInvalidateAll(t *testing.T) {
	root := t.TempDir()
	writeSettings(t, root, "guides", "title: One\n")
	c := New()

	ctx := context.Background()
	c.Resolve(ctx, root, "guides")
	require.Equal(t, 1, c.Stats().Entries)

	c.InvalidateAll()
	require.Equal(t, 0, c.Stats().Entries)

	writeSettings(t, root, "guides", "title: Two\n")
	require.Equal(t, "Two", c.Resolve(ctx, root, "guides").Title)
}

func TestStatsCounters(t *testing.T) {
	root := t.TempDir()
	c := New()
	ctx := context.Background()

	c.Resolve(ctx, root, "a")
	c.Resolve(ctx, root, "a")
	c.Resolve(ctx, root, "b")

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(2), stats.Misses)
	require.Equal(t, 2, stats.Entries)
}

func TestNormalizeDir(t *testing.T) {
	require.Equal(t, ".", normalizeDir(""))
	require.Equal(t, ".", normalizeDir("."))
	require.Equal(t, ".", normalizeDir("/"))
	require.Equal(t, "guides", normalizeDir("guides/"))
	require.Equal(t, "guides/sub", normalizeDir("./guides/sub"))
	require.Equal(t, "guides", normalizeDir("/guides"))
}
