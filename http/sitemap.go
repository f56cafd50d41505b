package http

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/fwojciec/webscrape"
)

// Ensure Sitemap implements webscrape.SitemapService.
var _ webscrape.SitemapService = (*Sitemap)(nil)

// Sitemap discovers page URLs from robots.txt sitemap directives, falling
// back to /sitemap.xml. Gzipped sitemaps are decompressed.
type Sitemap struct {
	transport webscrape.Transport
	userAgent string
	logger    *slog.Logger
}

// SitemapOption configures a Sitemap.
type SitemapOption func(*Sitemap)

// WithUserAgent sets the User-Agent sent with sitemap requests.
func WithUserAgent(ua string) SitemapOption {
	return func(s *Sitemap) {
		s.userAgent = ua
	}
}

// WithLogger sets the logger used to report sitemaps that could not be read
// while generating URLs.
func WithLogger(logger *slog.Logger) SitemapOption {
	return func(s *Sitemap) {
		s.logger = logger
	}
}

// NewSitemap creates a Sitemap fetching through transport. A nil transport
// uses a new Transport.
func NewSitemap(transport webscrape.Transport, opts ...SitemapOption) *Sitemap {
	if transport == nil {
		transport = NewTransport()
	}
	s := &Sitemap{
		transport: transport,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DiscoverURLs implements webscrape.SitemapService. Returns an empty slice
// (not nil) if no sitemaps are found.
//
// When siteURL has a non-root path (e.g., https://example.com/docs/),
// only URLs with paths starting with that prefix are returned.
func (s *Sitemap) DiscoverURLs(ctx context.Context, siteURL string, filter *webscrape.URLFilter) ([]string, error) {
	urls := []string{}
	err := s.walk(ctx, siteURL, func(u string) bool {
		if filter.Match(u) {
			urls = append(urls, u)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

// URLs returns a lazy sequence of the site's sitemap URLs, suitable as a
// crawl generator. Sitemaps are fetched only as the sequence is consumed.
// Errors end the sequence and are logged.
func (s *Sitemap) URLs(ctx context.Context, siteURL string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if err := s.walk(ctx, siteURL, yield); err != nil {
			s.logger.Warn("sitemap walk stopped", "url", siteURL, "error", err)
		}
	}
}

// walk yields each distinct page URL under siteURL's path prefix until
// yield returns false.
func (s *Sitemap) walk(ctx context.Context, siteURL string, yield func(string) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base, err := url.Parse(siteURL)
	if err != nil {
		return webscrape.Errorf(webscrape.EINVALID, "invalid site URL: %v", err)
	}

	pathPrefix := base.Path
	if pathPrefix == "/" {
		pathPrefix = ""
	}

	// Sitemaps live at the root of the host.
	root := *base
	root.Path = ""
	root.RawQuery = ""
	root.Fragment = ""

	sitemapURLs, fallback := s.findSitemapURLs(ctx, &root)

	w := &walker{
		s:        s,
		prefix:   pathPrefix,
		yield:    yield,
		sitemaps: make(map[string]bool),
		urls:     make(map[string]bool),
	}
	for _, sitemapURL := range sitemapURLs {
		err := w.process(ctx, sitemapURL)
		// A missing /sitemap.xml means the site has no sitemap.
		if fallback && webscrape.ErrorCode(err) == webscrape.ENOTFOUND {
			return nil
		}
		if err != nil {
			return err
		}
		if w.done {
			return nil
		}
	}
	return nil
}

// walker carries the state of a single walk.
type walker struct {
	s        *Sitemap
	prefix   string
	yield    func(string) bool
	sitemaps map[string]bool
	urls     map[string]bool
	done     bool
}

// process fetches and parses a sitemap, handling both urlset and sitemapindex.
func (w *walker) process(ctx context.Context, sitemapURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.sitemaps[sitemapURL] {
		return nil
	}
	w.sitemaps[sitemapURL] = true

	body, err := w.s.fetch(ctx, sitemapURL)
	if err != nil {
		return err
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(body); err != nil {
		return webscrape.Errorf(webscrape.EINVALID, "parsing sitemap XML %s: %v", sitemapURL, err)
	}
	root := doc.Root()
	if root == nil {
		return webscrape.Errorf(webscrape.EINVALID, "empty sitemap XML %s", sitemapURL)
	}

	if root.Tag == "sitemapindex" {
		for _, loc := range locs(root, "sitemap") {
			if err := w.process(ctx, loc); err != nil {
				return err
			}
			if w.done {
				return nil
			}
		}
		return nil
	}

	for _, loc := range locs(root, "url") {
		if w.urls[loc] || (w.prefix != "" && !matchesPathPrefix(loc, w.prefix)) {
			continue
		}
		w.urls[loc] = true
		if !w.yield(loc) {
			w.done = true
			return nil
		}
	}
	return nil
}

// locs returns the trimmed <loc> text of every child element named tag.
func locs(root *etree.Element, tag string) []string {
	var out []string
	for _, el := range root.SelectElements(tag) {
		loc := el.SelectElement("loc")
		if loc == nil {
			continue
		}
		if u := strings.TrimSpace(loc.Text()); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// matchesPathPrefix checks if a URL's path starts with the given prefix,
// respecting path boundaries (/docs matches /docs/intro but not /documentation).
func matchesPathPrefix(rawURL, prefix string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !strings.HasSuffix(prefix, "/") {
		if parsed.Path == prefix {
			return true
		}
		prefix += "/"
	}
	return strings.HasPrefix(parsed.Path, prefix)
}

// findSitemapURLs returns the sitemaps listed in robots.txt, or
// /sitemap.xml with fallback set when robots.txt lists none.
func (s *Sitemap) findSitemapURLs(ctx context.Context, base *url.URL) (urls []string, fallback bool) {
	robotsURL := base.ResolveReference(&url.URL{Path: "/robots.txt"})
	if body, err := s.fetch(ctx, robotsURL.String()); err == nil {
		if sitemaps := parseSitemapDirectives(body); len(sitemaps) > 0 {
			return sitemaps, false
		}
	}
	sitemapURL := base.ResolveReference(&url.URL{Path: "/sitemap.xml"})
	return []string{sitemapURL.String()}, true
}

// parseSitemapDirectives extracts Sitemap: lines from a robots.txt body.
func parseSitemapDirectives(body io.Reader) []string {
	var sitemaps []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			if u := strings.TrimSpace(line[len("sitemap:"):]); u != "" {
				sitemaps = append(sitemaps, u)
			}
		}
	}
	return sitemaps
}

// fetch returns the body of a 200 response, decompressing gzip payloads.
func (s *Sitemap) fetch(ctx context.Context, target string) (io.Reader, error) {
	resp, err := s.transport.Do(ctx, &webscrape.Request{
		URL:          target,
		UserAgent:    s.userAgent,
		MaxRedirects: 10,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, webscrape.Errorf(webscrape.ENOTFOUND, "HTTP %d for %s", resp.StatusCode, target)
	}

	data := []byte(resp.Content)
	if bytes.HasPrefix(data, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip sitemap %s: %w", target, err)
		}
		defer gz.Close()
		if data, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("gzip sitemap %s: %w", target, err)
		}
	}
	return bytes.NewReader(data), nil
}
