package webscrape

import (
	"context"
	"regexp"
	"slices"
)

// SitemapService discovers page URLs published in a site's sitemaps.
type SitemapService interface {
	// DiscoverURLs returns the page URLs of siteURL's sitemaps that pass
	// filter, in sitemap order and without duplicates. Sitemaps declared in
	// robots.txt are read first; /sitemap.xml is the fallback. Sitemap
	// indexes are followed.
	//
	// A nil filter accepts every URL. A site without sitemaps yields an
	// empty slice.
	DiscoverURLs(ctx context.Context, siteURL string, filter *URLFilter) ([]string, error)
}

// URLFilter selects URLs by regular expression.
type URLFilter struct {
	// Include, when non-empty, requires a match of at least one pattern.
	Include []*regexp.Regexp
	// Exclude rejects URLs matching any pattern, after Include.
	Exclude []*regexp.Regexp
}

// Match reports whether rawURL passes the filter. A nil filter passes
// everything.
func (f *URLFilter) Match(rawURL string) bool {
	if f == nil {
		return true
	}
	matches := func(re *regexp.Regexp) bool { return re.MatchString(rawURL) }
	if len(f.Include) > 0 && !slices.ContainsFunc(f.Include, matches) {
		return false
	}
	return !slices.ContainsFunc(f.Exclude, matches)
}
