// Package htmldoc turns a single Confluence-style HTML export into a
// model.Document: title, breadcrumb, links, and flattened body text. It
// walks the parsed node tree the way
// intelligencedev-manifold/internal/web/web.go's extractTitle/extractText
// do, rather than pulling in a markdown-conversion library — rendering the
// body to markdown is explicitly out of scope, this package only needs the
// raw text that gets substituted into the extraction prompt.
package htmldoc

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/brunokrugel/kgforge/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

var breadcrumbContainerIDs = map[string]bool{
	"breadcrumbs":         true,
	"breadcrumb-section":  true,
	"com-breadcrumbs":     true,
}

// Parse reads the file at path and builds a Document. path is stored
// verbatim as model.Document.SourcePath; docID/namespace are supplied by the
// caller (the orchestrator derives docID from the path relative to the
// corpus root, per spec.md §3).
func Parse(path, docID, namespace string) (model.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, fmt.Errorf("htmldoc: reading %s: %w", path, err)
	}

	node, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return model.Document{}, fmt.Errorf("htmldoc: parsing %s: %w", path, err)
	}

	title := extractTitle(node)
	breadcrumb := extractBreadcrumb(node)
	if len(breadcrumb) == 0 {
		breadcrumb = breadcrumbFromPath(path)
	}
	links := extractLinks(node)

	var body strings.Builder
	extractText(node, &body, true)
	text := strings.TrimSpace(whitespaceRe.ReplaceAllString(body.String(), " "))

	doc := model.Document{
		DocID:       docID,
		Namespace:   namespace,
		SourcePath:  path,
		Title:       title,
		Breadcrumb:  breadcrumb,
		Links:       links,
		Text:        text,
		ContentHash: model.HashText(text),
	}
	return doc, nil
}

func extractTitle(n *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return title
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasBreadcrumbMarker(n *html.Node) bool {
	if breadcrumbContainerIDs[strings.ToLower(nodeAttr(n, "id"))] {
		return true
	}
	return strings.Contains(strings.ToLower(nodeAttr(n, "class")), "breadcrumb")
}

// extractBreadcrumb looks for a Confluence-style breadcrumb container and
// returns its anchor text in document order.
func extractBreadcrumb(n *html.Node) []string {
	var container *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if container != nil {
			return
		}
		if n.Type == html.ElementNode && hasBreadcrumbMarker(n) {
			container = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(n)
	if container == nil {
		return nil
	}

	var out []string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var sb strings.Builder
			extractText(n, &sb, false)
			label := strings.TrimSpace(whitespaceRe.ReplaceAllString(sb.String(), " "))
			if label != "" {
				out = append(out, label)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(container)
	return out
}

// breadcrumbFromPath falls back to the directory segments of the source
// file when the export carries no breadcrumb markup.
func breadcrumbFromPath(path string) []string {
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	parts := strings.Split(filepath.ToSlash(dir), "/")
	var out []string
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

func extractLinks(n *html.Node) []model.Link {
	var out []model.Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := nodeAttr(n, "href")
			if href != "" {
				var sb strings.Builder
				extractText(n, &sb, false)
				text := strings.TrimSpace(whitespaceRe.ReplaceAllString(sb.String(), " "))
				out = append(out, model.Link{
					URL:  href,
					Text: text,
					Kind: classifyLink(href),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// classifyLink treats anything with an http(s) scheme as external and
// everything else (relative paths, fragments, mailto excluded by having no
// host) as internal, matching exported-corpus link conventions where
// same-space pages are referenced by relative href.
func classifyLink(href string) model.LinkKind {
	u, err := url.Parse(href)
	if err != nil {
		return model.LinkInternal
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return model.LinkExternal
	}
	return model.LinkInternal
}

// extractText flattens a node's text content. When skipNonContent is true,
// <script>/<style>/<nav> subtrees are skipped, matching the teacher's
// extractArticleContent intent of ignoring chrome around the real content.
func extractText(n *html.Node, sb *strings.Builder, skipNonContent bool) {
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	}
	if skipNonContent && n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "nav", "head":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, skipNonContent)
	}
}
