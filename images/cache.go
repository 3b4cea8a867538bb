package images

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/wolfeidau/docserve/telemetry"
)

// errUseOriginal is the internal sentinel; exposed as ErrUseOriginal.
// Any internal failure maps to it, so image serving can never 5xx because
// of a cache or codec problem.
type useOriginalError struct{}

func (useOriginalError) Error() string { return "serve original image" }

// ErrUseOriginal tells the caller to serve the source file unchanged. It is
// the only error Get returns.
var ErrUseOriginal error = useOriginalError{}

// Cache is the image derivative cache. Derivatives persist across restarts
// as files; a newer source mtime simply orphans the old derivative on disk.
type Cache struct {
	codec  Codec
	logger *slog.Logger
	stat   func(string) (os.FileInfo, error)

	// wg tracks in-flight background derivative writes so tests and
	// shutdown can wait for them.
	wg sync.WaitGroup

	hits      atomic.Int64
	misses    atomic.Int64
	fallbacks atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithStat overrides the stat function.
func WithStat(stat func(string) (os.FileInfo, error)) Option {
	return func(c *Cache) { c.stat = stat }
}

// New creates an image derivative cache backed by the given codec.
func New(codec Codec, opts ...Option) *Cache {
	c := &Cache{
		codec:  codec,
		logger: slog.Default(),
		stat:   os.Stat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the transformed bytes for (sourcePath, transform), reading a
// valid persisted derivative when one exists and invoking the codec
// otherwise. On any internal failure it returns ErrUseOriginal; the caller
// serves the source file instead. The derivative disk write is best-effort
// and happens off the response path; its failure is logged, never surfaced.
func (c *Cache) Get(ctx context.Context, sourcePath, cacheDir string, t Transform) ([]byte, string, error) {
	if t.IsZero() {
		return c.fallback(ctx, "no_transform")
	}

	srcInfo, err := c.stat(sourcePath)
	if err != nil {
		return c.fallback(ctx, "source_stat")
	}

	dpath := DerivativePath(cacheDir, sourcePath, t)

	// Validity is existence plus the mtime comparison; no entry object.
	if dInfo, err := c.stat(dpath); err == nil && !dInfo.ModTime().Before(srcInfo.ModTime()) {
		if data, err := os.ReadFile(dpath); err == nil {
			c.hits.Add(1)
			telemetry.RecordCacheRequest(ctx, telemetry.KindImage, telemetry.ResultHit)
			return data, ContentType(dpath), nil
		}
		// Unreadable derivative: regenerate below.
	}

	c.misses.Add(1)
	telemetry.RecordCacheRequest(ctx, telemetry.KindImage, telemetry.ResultMiss)

	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return c.fallback(ctx, "source_read")
	}

	out, err := c.codec.Transform(ctx, src, t)
	if err != nil {
		c.logger.Debug("image transform failed, serving original",
			"source", sourcePath, "error", err)
		return c.fallback(ctx, "codec")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := writeFileAtomic(dpath, out); err != nil {
			c.logger.Warn("writing image derivative", "path", dpath, "error", err)
			telemetry.RecordDerivativeWrite(context.Background(), false)
			return
		}
		telemetry.RecordDerivativeWrite(context.Background(), true)
	}()

	return out, ContentType(dpath), nil
}

// Wait blocks until all background derivative writes finish. Used by tests
// and graceful shutdown.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) fallback(ctx context.Context, reason string) ([]byte, string, error) {
	c.fallbacks.Add(1)
	telemetry.RecordImageFallback(ctx, reason)
	return nil, "", ErrUseOriginal
}

// Stats reports cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Fallbacks int64 `json:"fallbacks"`
}

// Stats returns hit/miss/fallback counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Fallbacks: c.fallbacks.Load(),
	}
}
