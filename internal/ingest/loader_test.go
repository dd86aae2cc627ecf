package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmentor/docmentor/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><title> Guide </title><style>p{}</style></head>
<body>
<nav>menu</nav>
<main>
  <h2>Install</h2>
  <p>Run   the <b>installer</b>.</p>
  <ul><li>one</li><li>two</li></ul>
  <script>alert(1)</script>
</main>
<footer>legal</footer>
</body></html>`

	text, err := ExtractHTML([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, "# Guide\n\n## Install\n\nRun the installer.\n\n- one\n- two", text)
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "legal")
}

func TestExtractHTML_NoBlocks(t *testing.T) {
	text, err := ExtractHTML([]byte("<html><body>just <i>inline</i> text</body></html>"))
	require.NoError(t, err)
	assert.Equal(t, "just inline text", text)
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText(FormatText, []byte("a  b\r\n\r\n\r\n\r\nc\n"))
	require.NoError(t, err)
	assert.Equal(t, "a b\n\nc", text)

	_, err = ExtractText(FormatUnknown, []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ExtractText(FormatText, []byte{0xff, 0xfe})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("\ta\n\nb   c \n"))
	assert.Equal(t, "", CleanText(" \n "))
}

func TestGetFormat(t *testing.T) {
	assert.Equal(t, FormatText, GetFormat(".TXT"))
	assert.Equal(t, FormatMarkdown, GetFormat(".md"))
	assert.Equal(t, FormatHTML, GetFormat(".htm"))
	assert.Equal(t, FormatUnknown, GetFormat(".pdf"))
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "# Title\n\nbody   text\n")

	l := NewLoader(config.DefaultConfig().Loader)
	doc, err := l.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(path), doc.ID)
	assert.Equal(t, FormatMarkdown, doc.Format)
	assert.Equal(t, "# Title\n\nbody text", doc.Text)

	_, err = l.LoadFile(filepath.Join(dir, "report.pdf"))
	assert.Error(t, err)

	writeFile(t, filepath.Join(dir, "report.pdf"), "%PDF")
	_, err = l.LoadFile(filepath.Join(dir, "report.pdf"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = l.LoadFile(dir)
	assert.Error(t, err)
}

func TestLoader_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "bravo")
	writeFile(t, filepath.Join(dir, "a.md"), "alpha")
	writeFile(t, filepath.Join(dir, "sub", "c.html"), "<p>charlie</p>")
	writeFile(t, filepath.Join(dir, "skip.go"), "package x")
	writeFile(t, filepath.Join(dir, ".git", "d.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "bad.txt"), string([]byte{0xff, 0xfe}))

	l := NewLoader(config.DefaultConfig().Loader)
	result, err := l.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	var ids []string
	for _, d := range result.Documents {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "sub", "c.html"),
	}, ids)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "bad.txt")

	_, err = l.LoadDir(context.Background(), filepath.Join(dir, "a.md"))
	assert.Error(t, err)
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "one.txt")
	writeFile(t, path, "only")

	l := NewLoader(config.DefaultConfig().Loader)
	result, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "only", result.Documents[0].Text)

	result, err = l.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, result.Documents, 1)

	_, err = l.Load(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
