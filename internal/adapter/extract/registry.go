// Package extract turns uploaded files into plain text for ingestion.
package extract

import (
	"fmt"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/arturoeanton/design-copilot/internal/port"
)

// Registry resolves an extractor by file extension, falling back to the content type.
type Registry struct {
	byExt  map[string]port.Extractor
	byMIME map[string]port.Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]port.Extractor),
		byMIME: make(map[string]port.Extractor),
	}
}

// Default returns a registry with plaintext, markdown and PDF support.
func Default() *Registry {
	r := NewRegistry()
	text := NewPlainText()
	r.Register(text, []string{".txt", ".text", ".md", ".markdown"}, []string{"text/plain", "text/markdown"})
	r.Register(NewPDF(nil), []string{".pdf"}, []string{"application/pdf"})
	return r
}

// Register maps extensions and MIME types to e. Later registrations win.
func (r *Registry) Register(e port.Extractor, exts, mimeTypes []string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
	for _, mt := range mimeTypes {
		r.byMIME[strings.ToLower(mt)] = e
	}
}

// Lookup returns the extractor for filename or contentType.
func (r *Registry) Lookup(filename, contentType string) (port.Extractor, error) {
	if e, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return e, nil
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if e, ok := r.byMIME[strings.ToLower(mt)]; ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (%s), supported: %s",
		port.ErrUnsupportedFileType, filename, contentType, strings.Join(r.Extensions(), ", "))
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}
