package content

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// MarkdownRenderer is the default Renderer: GitHub-flavored Markdown with
// YAML frontmatter.
type MarkdownRenderer struct {
	md goldmark.Markdown
}

// NewMarkdownRenderer creates a renderer with GFM extensions and automatic
// heading IDs.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(htmlrenderer.WithUnsafe()),
		),
	}
}

// Render implements Renderer.
func (r *MarkdownRenderer) Render(ctx context.Context, path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	front, body := splitFrontmatter(data)

	var meta map[string]any
	if len(front) > 0 {
		if err := yaml.Unmarshal(front, &meta); err != nil {
			return nil, fmt.Errorf("decoding frontmatter: %w", err)
		}
	}

	doc := r.md.Parser().Parse(text.NewReader(body))

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, body, doc); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	toc := collectHeadings(doc, body)

	title := titleFromMeta(meta)
	if title == "" {
		title = firstH1(toc)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &Artifact{
		Title:       title,
		HTML:        buf.String(),
		TOC:         toc,
		Frontmatter: meta,
		Raw:         string(data),
		Body:        string(body),
		Summary:     firstParagraphText(buf.Bytes()),
	}, nil
}

// splitFrontmatter separates a leading YAML frontmatter block (delimited by
// "---" lines) from the Markdown body. Files without frontmatter return a
// nil front slice and the input unchanged.
func splitFrontmatter(data []byte) (front, body []byte) {
	const delim = "---"

	rest, ok := bytes.CutPrefix(data, []byte(delim+"\n"))
	if !ok {
		rest, ok = bytes.CutPrefix(data, []byte(delim+"\r\n"))
	}
	if !ok {
		return nil, data
	}

	for _, end := range []string{"\n" + delim + "\n", "\n" + delim + "\r\n"} {
		if i := bytes.Index(rest, []byte(end)); i >= 0 {
			return rest[:i], rest[i+len(end):]
		}
	}
	// Frontmatter closed at EOF without trailing newline.
	if bytes.HasSuffix(rest, []byte("\n"+delim)) {
		return rest[:len(rest)-len(delim)-1], nil
	}
	return nil, data
}

func titleFromMeta(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if t, ok := meta["title"].(string); ok {
		return t
	}
	return ""
}

func firstH1(toc []Heading) string {
	for _, h := range toc {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}

// collectHeadings walks the parsed document and returns its headings in
// order, with the IDs assigned by the auto-heading-ID parser option.
func collectHeadings(doc ast.Node, source []byte) []Heading {
	var toc []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var id string
		if v, found := h.AttributeString("id"); found {
			if b, ok := v.([]byte); ok {
				id = string(b)
			}
		}
		toc = append(toc, Heading{
			Level: h.Level,
			Text:  nodeText(h, source),
			ID:    id,
		})
		return ast.WalkSkipChildren, nil
	})
	return toc
}

// nodeText concatenates the text segments under a node.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// firstParagraphText extracts the plain text of the first <p> element from
// rendered HTML. Used for summary lines; an empty result is fine.
func firstParagraphText(rendered []byte) string {
	doc, err := html.Parse(bytes.NewReader(rendered))
	if err != nil {
		return ""
	}

	var para *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if para != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "p" {
			para = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if para == nil {
		return ""
	}

	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(para)
	return strings.Join(strings.Fields(sb.String()), " ")
}
