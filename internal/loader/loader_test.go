package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeDOCX(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestRegistry_LoadText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.TXT", []byte("hello world\nsecond line"))

	units, err := New().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "hello world\nsecond line", units[0].Text)
	assert.Equal(t, 0, units[0].Page)
}

func TestRegistry_LoadMarkdownStripsBOM(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "readme.md", []byte("\xef\xbb\xbf# Title"))

	units, err := New().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "# Title", units[0].Text)
}

func TestRegistry_LoadEmptyText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blank.txt", []byte("  \n\t"))

	units, err := New().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestRegistry_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"image.png", "archive.tar.gz", "noext"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, name, []byte("data"))
			_, err := New().Load(context.Background(), path)
			assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
		})
	}
}

func TestRegistry_LoadDOCX(t *testing.T) {
	dir := t.TempDir()
	path := writeDOCX(t, dir, "report.docx",
		`<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>`)

	units, err := New().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", units[0].Text)
}

func TestRegistry_LegacyDocIsUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "old.doc", []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1})

	_, err := New().Load(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestRegistry_InvalidPDF(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", []byte("not a pdf"))

	_, err := New().Load(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestRegistry_RegisterAndSupported(t *testing.T) {
	r := New()
	assert.True(t, r.Supported("a.PDF"))
	assert.False(t, r.Supported("a.csv"))

	r.Register(".CSV", FormatLoaderFunc(func(context.Context, string) ([]domain.TextUnit, error) {
		return []domain.TextUnit{{Text: "a,b"}}, nil
	}))
	assert.True(t, r.Supported("data.csv"))
	assert.Contains(t, r.Extensions(), ".csv")

	units, err := r.Load(context.Background(), "data.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b", units[0].Text)
}
