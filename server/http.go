// Package server provides the HTTP server for the documentation cache.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/wolfeidau/docserve/aggregate"
	"github.com/wolfeidau/docserve/content"
	"github.com/wolfeidau/docserve/images"
	"github.com/wolfeidau/docserve/settings"
	"github.com/wolfeidau/docserve/telemetry"
)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ContentRoot is the documentation tree; the single writable source
	// of truth every cache is reconstructible from.
	ContentRoot string

	// ImageCacheDir is where image derivatives persist.
	ImageCacheDir string

	// SiteName heads the aggregate context document.
	SiteName string

	// DevMode switches the settings cache to its short TTL.
	DevMode bool

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the documentation cache.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger

	// Caches
	content  *content.Cache
	settings *settings.Cache
	agg      *aggregate.Cache
	images   *images.Cache
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.ContentRoot == "" {
		return nil, fmt.Errorf("content root is required")
	}
	if cfg.ImageCacheDir == "" {
		cfg.ImageCacheDir = "./cache/images"
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "Documentation"
	}

	contentCache := content.New(
		content.NewMarkdownRenderer(),
		content.WithLogger(cfg.Logger.With("component", "content")),
	)
	settingsCache := settings.New(
		settings.WithDevMode(cfg.DevMode),
		settings.WithLogger(cfg.Logger.With("component", "settings")),
	)
	aggCache := aggregate.New(
		cfg.ContentRoot,
		cfg.SiteName,
		contentCache,
		aggregate.WithLogger(cfg.Logger.With("component", "aggregate")),
	)
	imageCache := images.New(
		images.NewImagingCodec(),
		images.WithLogger(cfg.Logger.With("component", "images")),
	)

	s := &Server{
		config:   cfg,
		logger:   cfg.Logger,
		content:  contentCache,
		settings: settingsCache,
		agg:      aggCache,
		images:   imageCache,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.loggingMiddleware(gzhttp.GzipHandler(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Cache stats
	mux.HandleFunc("GET /stats", s.handleStats)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	// Aggregate context document
	mux.HandleFunc("GET /llms.txt", s.handleAggregate)

	// Image variants
	mux.HandleFunc("GET /images/{file...}", s.handleImage)

	// Wholesale in-memory invalidation (content, settings, aggregate);
	// persisted image derivatives are left alone.
	mux.HandleFunc("POST /admin/invalidate", s.handleInvalidate)

	// Pages at the root
	mux.HandleFunc("GET /{page...}", s.handlePage)
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Inject request tags so handlers can set cache_result and endpoint.
		r = telemetry.InjectTags(r)
		tags := telemetry.GetTags(r)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,

			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,

			"duration_ms", duration.Milliseconds(),

			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if tags.Endpoint != "" {
			attrs = append(attrs, "endpoint", tags.Endpoint)
		}
		if tags.CacheResult != "" {
			attrs = append(attrs, "cache_result", string(tags.CacheResult))
		}

		s.logger.Info("http request", attrs...)

		telemetry.RecordHTTP(r.Context(), r, wrapped.status, wrapped.bytesWritten, duration)
	})
}

// Start starts the server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"address", s.config.Address,
		"content_root", s.config.ContentRoot,
		"dev_mode", s.config.DevMode,
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server, waiting for in-flight image
// derivative writes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.images.Wait()
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// bytes written.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
