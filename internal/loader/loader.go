// Package loader turns uploaded files into ordered text units, dispatching on file extension.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"docqa/internal/domain"
)

// FormatLoader reads one file format.
type FormatLoader interface {
	Load(ctx context.Context, path string) ([]domain.TextUnit, error)
}

// FormatLoaderFunc adapts a function to FormatLoader.
type FormatLoaderFunc func(ctx context.Context, path string) ([]domain.TextUnit, error)

func (f FormatLoaderFunc) Load(ctx context.Context, path string) ([]domain.TextUnit, error) {
	return f(ctx, path)
}

// Registry maps lower-cased extensions (".pdf") to format loaders.
type Registry struct {
	loaders map[string]FormatLoader
}

// New returns a registry with the built-in formats: .txt, .md, .pdf, .docx and .doc.
func New() *Registry {
	r := &Registry{loaders: make(map[string]FormatLoader)}
	text := FormatLoaderFunc(loadText)
	r.Register(".txt", text)
	r.Register(".md", text)
	r.Register(".pdf", FormatLoaderFunc(loadPDF))
	r.Register(".docx", FormatLoaderFunc(loadDOCX))
	r.Register(".doc", FormatLoaderFunc(loadDOCX))
	return r
}

// Register adds or replaces the loader for an extension.
func (r *Registry) Register(ext string, l FormatLoader) {
	r.loaders[strings.ToLower(ext)] = l
}

// Supported reports whether the file name has a registered extension.
func (r *Registry) Supported(name string) bool {
	_, ok := r.loaders[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load reads path with the loader registered for its extension.
func (r *Registry) Load(ctx context.Context, path string) ([]domain.TextUnit, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := r.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}
	return l.Load(ctx, path)
}
