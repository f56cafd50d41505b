// Package fs provides file-based storage: crawl state, proxy lists and
// saved pages.
package fs

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fwojciec/webscrape"
)

// URLToPath converts a page URL to a relative file path under its host.
// Example: https://example.com/docs/api/users → example.com/docs/api/users.html
func URLToPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", webscrape.Errorf(webscrape.EINVALID, "invalid URL %q: %v", rawURL, err)
	}
	if u.Host == "" {
		return "", webscrape.Errorf(webscrape.EINVALID, "URL %q has no host", rawURL)
	}

	// Cleaning a rooted path keeps ".." from escaping the host directory.
	p := u.Path
	trailing := p == "" || strings.HasSuffix(p, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")

	switch {
	case p == "":
		p = "index.html"
	case trailing:
		p += "/index.html"
	case path.Ext(p) == "":
		p += ".html"
	}
	return filepath.Join(u.Host, filepath.FromSlash(p)), nil
}

var (
	_ webscrape.Extractor     = (*PageWriter)(nil)
	_ webscrape.ResultCounter = (*PageWriter)(nil)
)

// PageWriter saves every crawled page to a directory, then hands the page
// to the next extractor.
type PageWriter struct {
	baseDir string
	next    webscrape.Extractor
}

// NewPageWriter creates a PageWriter saving under baseDir. A nil next
// extractor follows no links.
func NewPageWriter(baseDir string, next webscrape.Extractor) *PageWriter {
	return &PageWriter{baseDir: baseDir, next: next}
}

// Extract implements webscrape.Extractor.
func (w *PageWriter) Extract(ctx context.Context, content, rawURL string) ([]string, error) {
	relPath, err := URLToPath(rawURL)
	if err != nil {
		return nil, err
	}

	fullPath := filepath.Join(w.baseDir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		return nil, err
	}

	if w.next == nil {
		return nil, nil
	}
	return w.next.Extract(ctx, content, rawURL)
}

// Results reports the next extractor's result count.
func (w *PageWriter) Results() int {
	if c, ok := w.next.(webscrape.ResultCounter); ok {
		return c.Results()
	}
	return 0
}
