package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/webscrape"
)

var _ webscrape.HTMLRewriter = (*Rewriter)(nil)

// linkAttrs lists the elements whose URL attributes AbsoluteLinks rewrites.
var linkAttrs = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"link[href]", "href"},
	{"area[href]", "href"},
	{"img[src]", "src"},
	{"script[src]", "src"},
	{"iframe[src]", "src"},
	{"form[action]", "action"},
}

// Rewriter implements webscrape.HTMLRewriter using goquery.
type Rewriter struct{}

// NewRewriter creates a new Rewriter.
func NewRewriter() *Rewriter {
	return &Rewriter{}
}

// MetaRedirect returns the target of the first <meta http-equiv="refresh">
// directive that names a URL, resolved against baseURL.
func (r *Rewriter) MetaRedirect(html, baseURL string) (string, bool) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	var target string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		equiv, _ := sel.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		content, _ := sel.Attr("content")
		ref := refreshURL(content)
		if ref == "" {
			return true
		}
		target = resolveURL(base, ref)
		return target == ""
	})
	return target, target != ""
}

// AbsoluteLinks rewrites relative URLs in link, image, script and form
// attributes to absolute ones against baseURL. A <base href> in the
// document is ignored. The input is returned unchanged if it cannot be
// parsed.
func (r *Rewriter) AbsoluteLinks(html, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	for _, la := range linkAttrs {
		doc.Find(la.selector).Each(func(_ int, sel *goquery.Selection) {
			value, _ := sel.Attr(la.attr)
			value = strings.TrimSpace(value)
			if value == "" || strings.HasPrefix(value, "#") || isNonHTTPLink(value) {
				return
			}
			ref, err := url.Parse(value)
			if err != nil || ref.IsAbs() {
				return
			}
			sel.SetAttr(la.attr, base.ResolveReference(ref).String())
		})
	}

	out, err := doc.Html()
	if err != nil {
		return html
	}
	return out
}

// refreshURL extracts the URL from a refresh directive such as
// "5; url=/next". Returns "" if the directive has no URL.
func refreshURL(content string) string {
	_, rest, ok := strings.Cut(content, ";")
	if !ok {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if len(rest) >= 4 && strings.EqualFold(rest[:4], "url=") {
		rest = rest[4:]
	} else if len(rest) >= 3 && strings.EqualFold(rest[:3], "url") {
		rest = strings.TrimSpace(rest[3:])
		rest = strings.TrimPrefix(rest, "=")
	}
	return strings.Trim(strings.TrimSpace(rest), `"'`)
}

// resolveURL resolves a relative URL against a base URL.
// Returns empty string if the href cannot be parsed.
// Fragments are stripped from the resolved URL.
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
