package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wolfeidau/docserve/telemetry"
)

// entry is one cached artifact together with its validity token. The token
// is the source file's modification time in milliseconds; equality of token,
// not presence of the entry, decides a hit.
type entry struct {
	artifact   *Artifact
	mtime      int64
	computedAt time.Time
}

// Cache is the file content cache. Entries are created lazily on first
// miss, live in process memory with no eviction policy (the key space is
// bounded by the number of content files), and are cleared wholesale by
// InvalidateAll or process restart.
type Cache struct {
	renderer Renderer
	logger   *slog.Logger
	stat     func(string) (os.FileInfo, error)
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	// sf coalesces concurrent misses for the same (path, mtime) so
	// regeneration runs at most once per invalidation.
	sf singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithStat overrides the stat function, letting tests simulate mtime
// changes without touching real files.
func WithStat(stat func(string) (os.FileInfo, error)) Option {
	return func(c *Cache) { c.stat = stat }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a content cache backed by the given renderer.
func New(r Renderer, opts ...Option) *Cache {
	c := &Cache{
		renderer: r,
		logger:   slog.Default(),
		stat:     os.Stat,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the parsed artifact for path. The common case is one stat and
// one map lookup; a stale or absent entry triggers a render and store.
// Returns ErrNotFound when the file does not exist (including when it was
// deleted after an earlier population) and a *ParseError when rendering
// fails. Failed renders are never cached, so the next caller retries
// naturally.
func (c *Cache) Get(ctx context.Context, path string) (*Artifact, error) {
	info, err := c.stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	mtime := info.ModTime().UnixMilli()

	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()

	if ok && e.mtime == mtime {
		c.hits.Add(1)
		telemetry.RecordCacheRequest(ctx, telemetry.KindContent, telemetry.ResultHit)
		return e.artifact, nil
	}

	c.misses.Add(1)
	telemetry.RecordCacheRequest(ctx, telemetry.KindContent, telemetry.ResultMiss)

	// Key the flight on the observed token so a touch mid-flight can never
	// stamp a stale artifact with a fresh token.
	key := path + "\x00" + strconv.FormatInt(mtime, 10)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		start := c.now()
		art, err := c.renderer.Render(ctx, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, &ParseError{Path: path, Err: err}
		}
		telemetry.RecordRegeneration(ctx, telemetry.KindContent, c.now().Sub(start))

		c.mu.Lock()
		c.entries[path] = &entry{
			artifact:   art,
			mtime:      mtime,
			computedAt: c.now(),
		}
		c.mu.Unlock()

		c.logger.Debug("content rendered", "path", path, "mtime", mtime)
		return art, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// InvalidateAll clears every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	c.logger.Debug("content cache invalidated")
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
