package htmldoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokrugel/kgforge/internal/model"
)

func writeTempHTML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseExtractsTitleAndText(t *testing.T) {
	dir := t.TempDir()
	path := writeTempHTML(t, dir, "a.html", `<html><head><title>Atlas Overview</title></head>
<body><article><p>Atlas is the flagship product.</p></article></body></html>`)

	doc, err := Parse(path, "a", "acme")
	require.NoError(t, err)
	require.Equal(t, "Atlas Overview", doc.Title)
	require.Contains(t, doc.Text, "Atlas is the flagship product.")
	require.Equal(t, "a", doc.DocID)
	require.Equal(t, "acme", doc.Namespace)
	require.Equal(t, model.HashText(doc.Text), doc.ContentHash)
}

func TestParseExtractsBreadcrumbFromMarkup(t *testing.T) {
	dir := t.TempDir()
	path := writeTempHTML(t, dir, "b.html", `<html><body>
<div id="breadcrumbs"><a href="/space">Space</a><a href="/space/page">Page</a></div>
<article><p>Body text.</p></article>
</body></html>`)

	doc, err := Parse(path, "b", "acme")
	require.NoError(t, err)
	require.Equal(t, []string{"Space", "Page"}, doc.Breadcrumb)
}

func TestParseFallsBackToPathBreadcrumb(t *testing.T) {
	dir := t.TempDir()
	path := writeTempHTML(t, dir, filepath.Join("space", "sub", "c.html"), `<html><body><p>No breadcrumb here.</p></body></html>`)

	doc, err := Parse(path, "c", "acme")
	require.NoError(t, err)
	require.Equal(t, []string{"space", "sub"}, doc.Breadcrumb)
}

func TestParseClassifiesLinks(t *testing.T) {
	dir := t.TempDir()
	path := writeTempHTML(t, dir, "d.html", `<html><body>
<a href="https://example.com/other">External</a>
<a href="/space/other-page">Internal</a>
</body></html>`)

	doc, err := Parse(path, "d", "acme")
	require.NoError(t, err)
	require.Len(t, doc.Links, 2)
	require.Equal(t, model.LinkExternal, doc.Links[0].Kind)
	require.Equal(t, model.LinkInternal, doc.Links[1].Kind)
}

func TestParseMissingFileReturnsError(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.html"), "x", "acme")
	require.Error(t, err)
}
