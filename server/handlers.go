package server

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/wolfeidau/docserve/aggregate"
	"github.com/wolfeidau/docserve/content"
	"github.com/wolfeidau/docserve/images"
	"github.com/wolfeidau/docserve/settings"
	"github.com/wolfeidau/docserve/telemetry"
)

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// statsResponse is the per-cache-kind counter report for /stats.
type statsResponse struct {
	Content   content.Stats   `json:"content"`
	Settings  settings.Stats  `json:"settings"`
	Aggregate aggregate.Stats `json:"aggregate"`
	Images    images.Stats    `json:"images"`
}

// handleStats handles cache statistics requests.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "stats")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statsResponse{
		Content:   s.content.Stats(),
		Settings:  s.settings.Stats(),
		Aggregate: s.agg.Stats(),
		Images:    s.images.Stats(),
	})
}

// handleAggregate serves the aggregate context document, optionally scoped
// with ?sections=a,b.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "aggregate")

	var names []string
	if raw := r.URL.Query().Get("sections"); raw != "" {
		names = strings.Split(raw, ",")
	}

	hitsBefore := s.agg.Stats().Hits
	text, err := s.agg.Sections(r.Context(), names)
	if err != nil {
		s.logger.Error("building aggregate context", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if s.agg.Stats().Hits > hitsBefore {
		telemetry.SetCacheResult(r, telemetry.ResultHit)
	} else {
		telemetry.SetCacheResult(r, telemetry.ResultMiss)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

// handleImage serves an image variant. Any internal failure falls back to
// serving the source file unchanged; image requests never 5xx because of
// the cache or codec.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "image")

	rel, ok := cleanRequestPath(r.PathValue("file"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	src := filepath.Join(s.config.ContentRoot, filepath.FromSlash(rel))

	transform := images.ParseTransform(r.URL.Query())
	data, ctype, err := s.images.Get(r.Context(), src, s.config.ImageCacheDir, transform)
	if err != nil {
		// Serve the original; a missing source 404s naturally here.
		telemetry.SetCacheResult(r, telemetry.ResultFallback)
		http.ServeFile(w, r, src)
		return
	}

	w.Header().Set("Content-Type", ctype)
	_, _ = w.Write(data)
}

// handleInvalidate clears all in-memory caches. Disk-persisted image
// derivatives are not touched; their validity is re-derived from mtimes.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "invalidate")

	s.content.InvalidateAll()
	s.settings.InvalidateAll()
	s.agg.InvalidateAll()

	s.logger.Info("in-memory caches invalidated")
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"invalidated"}`))
}

// pageTemplate is the minimal HTML shell around a rendered artifact.
var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body data-layout="{{.Layout}}">
{{if .Hero.Heading}}<header class="hero"><h1>{{.Hero.Heading}}</h1><p>{{.Hero.Tagline}}</p></header>
{{end}}<main>
{{.Content}}
</main>
</body>
</html>
`))

type pageData struct {
	Title   string
	Layout  settings.Layout
	Hero    settings.Hero
	Content template.HTML
}

// handlePage serves a rendered documentation page.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "page")

	rel, ok := cleanRequestPath(r.PathValue("page"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	hitsBefore := s.content.Stats().Hits
	art, pagePath, err := s.resolvePage(r, rel)
	if err != nil {
		var perr *content.ParseError
		switch {
		case errors.Is(err, content.ErrNotFound):
			http.NotFound(w, r)
		case errors.As(err, &perr):
			s.logger.Error("rendering page", "path", perr.Path, "error", perr.Err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			s.logger.Error("serving page", "path", rel, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	if s.content.Stats().Hits > hitsBefore {
		telemetry.SetCacheResult(r, telemetry.ResultHit)
	} else {
		telemetry.SetCacheResult(r, telemetry.ResultMiss)
	}

	dirSettings := s.settings.Resolve(r.Context(), s.config.ContentRoot, path.Dir(pagePath))

	title := art.Title
	if title == "" {
		title = dirSettings.Title
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = pageTemplate.Execute(w, pageData{
		Title:   title,
		Layout:  dirSettings.Layout,
		Hero:    dirSettings.Hero,
		Content: template.HTML(art.HTML),
	})
	if err != nil {
		s.logger.Error("writing page response", "path", pagePath, "error", err)
	}
}

// resolvePage maps a request path to a content file, trying the path
// itself, then with a Markdown extension, then as a directory index.
// It returns the artifact and the matched path relative to the root.
func (s *Server) resolvePage(r *http.Request, rel string) (*content.Artifact, string, error) {
	var candidates []string
	switch {
	case rel == "":
		candidates = []string{"index.md"}
	case strings.HasSuffix(rel, ".md") || strings.HasSuffix(rel, ".mdx"):
		candidates = []string{rel}
	default:
		candidates = []string{rel + ".md", rel + ".mdx", path.Join(rel, "index.md")}
	}

	for _, c := range candidates {
		full := filepath.Join(s.config.ContentRoot, filepath.FromSlash(c))
		art, err := s.content.Get(r.Context(), full)
		if err == nil {
			return art, c, nil
		}
		if !errors.Is(err, content.ErrNotFound) {
			return nil, c, err
		}
	}
	return nil, "", content.ErrNotFound
}

// cleanRequestPath canonicalizes a request-supplied relative path and
// rejects traversal and hidden segments.
func cleanRequestPath(raw string) (string, bool) {
	clean := path.Clean("/" + raw)
	rel := strings.TrimPrefix(clean, "/")
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") || strings.HasPrefix(seg, "_") {
			return "", false
		}
	}
	return rel, true
}
