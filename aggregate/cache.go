// Package aggregate provides the aggregate context cache: a single
// concatenated text document (llms.txt style) representing the whole
// content tree or a named subset of its sections.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	docserve "github.com/wolfeidau/docserve"
	"github.com/wolfeidau/docserve/content"
	"github.com/wolfeidau/docserve/telemetry"
)

type entry struct {
	text       string
	digest     docserve.Digest
	computedAt time.Time
}

// Cache holds one entry for the full-tree document plus one per requested
// section set. Every lookup recomputes the tree fingerprint for its scope
// (one walk plus per-file stats, bounded by file count and independent of
// file size) and compares it against the stored digest; only a mismatch
// pays for re-rendering. The walk itself is deliberately not cached behind
// a TTL; see the package docs for the trade-off.
//
// Hashing (path, mtime) pairs is strictly cheaper than hashing file bytes
// and detects structural changes (add/remove/rename) a plain TTL would
// miss.
type Cache struct {
	root     string
	siteName string
	content  *content.Cache
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	// sf coalesces concurrent rebuilds per (key, digest).
	sf singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	rebuilds atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an aggregate cache over the content tree at root. Per-file
// rendering goes through the shared content cache, so work is shared with
// page serving.
func New(root, siteName string, cc *content.Cache, opts ...Option) *Cache {
	c := &Cache{
		root:     root,
		siteName: siteName,
		content:  cc,
		logger:   slog.Default(),
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Full returns the aggregate document for the whole tree.
func (c *Cache) Full(ctx context.Context) (string, error) {
	return c.get(ctx, nil)
}

// Sections returns the aggregate document scoped to the named top-level
// sections. Section entries are independent of each other and of the full
// entry; unknown names contribute nothing. An empty name set is the full
// document.
func (c *Cache) Sections(ctx context.Context, names []string) (string, error) {
	return c.get(ctx, names)
}

func (c *Cache) get(ctx context.Context, names []string) (string, error) {
	sections := normalizeSections(names)
	key := strings.Join(sections, ",")

	walkStart := c.now()
	files, err := docserve.WalkContent(c.root, sections)
	if err != nil {
		return "", err
	}
	telemetry.RecordFingerprintWalk(ctx, c.now().Sub(walkStart), len(files))

	digest := docserve.FingerprintFiles(files)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && e.digest == digest {
		c.hits.Add(1)
		telemetry.RecordCacheRequest(ctx, telemetry.KindAggregate, telemetry.ResultHit)
		return e.text, nil
	}

	c.misses.Add(1)
	telemetry.RecordCacheRequest(ctx, telemetry.KindAggregate, telemetry.ResultMiss)

	flightKey := key + "\x00" + digest.String()
	v, err, _ := c.sf.Do(flightKey, func() (any, error) {
		start := c.now()
		text := c.build(ctx, files)
		c.rebuilds.Add(1)
		telemetry.RecordRegeneration(ctx, telemetry.KindAggregate, c.now().Sub(start))

		c.mu.Lock()
		c.entries[key] = &entry{
			text:       text,
			digest:     digest,
			computedAt: c.now(),
		}
		c.mu.Unlock()

		c.logger.Debug("aggregate rebuilt",
			"key", key,
			"digest", digest.ShortString(),
			"files", len(files),
		)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// build renders the aggregate document: a site header, an index of pages
// with summaries, then each file's Markdown body under a structural path
// header. A file that fails to render is skipped with a warning; one bad
// file never takes the document down.
func (c *Cache) build(ctx context.Context, files []docserve.ContentFile) string {
	type page struct {
		file docserve.ContentFile
		art  *content.Artifact
	}

	pages := make([]page, 0, len(files))
	for _, f := range files {
		art, err := c.content.Get(ctx, f.Path)
		if err != nil {
			c.logger.Warn("skipping file in aggregate", "path", f.Rel, "error", err)
			continue
		}
		pages = append(pages, page{file: f, art: art})
	}

	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(c.siteName)
	sb.WriteString("\n\n")

	for _, p := range pages {
		sb.WriteString("- [")
		sb.WriteString(p.art.Title)
		sb.WriteString("](/")
		sb.WriteString(pageLink(p.file.Rel))
		sb.WriteString(")")
		if p.art.Summary != "" {
			sb.WriteString(": ")
			sb.WriteString(p.art.Summary)
		}
		sb.WriteString("\n")
	}

	for _, p := range pages {
		sb.WriteString("\n## ")
		sb.WriteString(p.file.Rel)
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimRight(p.art.Body, "\n"))
		sb.WriteString("\n")
	}

	return sb.String()
}

// InvalidateAll clears every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	c.logger.Debug("aggregate cache invalidated")
}

// Stats reports cache counters.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Rebuilds int64 `json:"rebuilds"`
	Entries  int   `json:"entries"`
}

// Stats returns hit/miss/rebuild counters and the entry count.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Rebuilds: c.rebuilds.Load(),
		Entries:  n,
	}
}

// normalizeSections sorts and de-duplicates section names so that every
// ordering of the same set shares one cache entry.
func normalizeSections(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// pageLink converts a relative file path to its serving path.
func pageLink(rel string) string {
	rel = strings.TrimSuffix(rel, ".md")
	return strings.TrimSuffix(rel, ".mdx")
}
