package settings

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfeidau/docserve/telemetry"
)

// devTTL bounds staleness of cached settings in development mode. Edits to
// a _dir.yml show up within this window without a restart.
const devTTL = 5 * time.Second

type entry struct {
	settings   Settings
	computedAt time.Time
}

// Cache resolves and caches directory settings.
//
// The validity policy diverges on purpose: in production, settings files
// are assumed immutable post-deploy, so entries never expire and the steady
// state costs one map lookup. In development a short wall-clock TTL bounds
// staleness instead; modification times are deliberately not consulted.
type Cache struct {
	devMode  bool
	logger   *slog.Logger
	now      func() time.Time
	getenv   func(string) string
	readFile func(string) ([]byte, error)

	mu      sync.RWMutex
	entries map[string]entry

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithDevMode enables the development TTL policy.
func WithDevMode(dev bool) Option {
	return func(c *Cache) { c.devMode = dev }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithEnv overrides environment lookup.
func WithEnv(getenv func(string) string) Option {
	return func(c *Cache) { c.getenv = getenv }
}

// WithReadFile overrides the settings file reader.
func WithReadFile(read func(string) ([]byte, error)) Option {
	return func(c *Cache) { c.readFile = read }
}

// New creates a settings cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		logger:   slog.Default(),
		now:      time.Now,
		getenv:   os.Getenv,
		readFile: os.ReadFile,
		entries:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the settings for dir (relative to root). It never fails:
// a missing settings file yields defaults (with the environment layout
// applied at the tree root), and a malformed one yields defaults plus a
// logged warning.
func (c *Cache) Resolve(ctx context.Context, root, dir string) Settings {
	norm := normalizeDir(dir)
	key := root + "\x00" + norm

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && (!c.devMode || c.now().Sub(e.computedAt) < devTTL) {
		c.hits.Add(1)
		telemetry.RecordCacheRequest(ctx, telemetry.KindSettings, telemetry.ResultHit)
		return e.settings
	}

	c.misses.Add(1)
	telemetry.RecordCacheRequest(ctx, telemetry.KindSettings, telemetry.ResultMiss)

	s := c.compute(root, norm)

	c.mu.Lock()
	c.entries[key] = entry{settings: s, computedAt: c.now()}
	c.mu.Unlock()

	return s
}

func (c *Cache) compute(root, norm string) Settings {
	file := filepath.Join(root, filepath.FromSlash(norm), FileName)

	data, err := c.readFile(file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("reading settings file", "path", file, "error", err)
		}
		return c.defaultsFor(norm)
	}

	s, err := parse(data)
	if err != nil {
		c.logger.Warn("malformed settings file, using defaults", "path", file, "error", err)
		return c.defaultsFor(norm)
	}
	return s
}

// defaultsFor returns the built-in defaults, with the environment layout
// flag applied only at the tree root.
func (c *Cache) defaultsFor(norm string) Settings {
	s := Default()
	if norm != "." {
		return s
	}
	if l := Layout(c.getenv(DefaultLayoutEnv)); l.valid() {
		s.Layout = l
	}
	return s
}

// InvalidateAll clears every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	c.logger.Debug("settings cache invalidated")
}

// Stats reports cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Stats returns hit/miss counters and the entry count.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: n,
	}
}

// normalizeDir canonicalizes a directory key: slash separators, no leading
// or trailing slashes, "." for the root.
func normalizeDir(dir string) string {
	norm := path.Clean("/" + filepath.ToSlash(dir))
	if norm == "/" {
		return "."
	}
	return norm[1:]
}
