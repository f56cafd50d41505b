package goquery

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/webscrape"
)

// DefaultLinkSelector matches every anchor with an href.
const DefaultLinkSelector = "a[href]"

var _ webscrape.Extractor = (*LinkExtractor)(nil)

// LinkExtractor returns the href of every element matching its selectors,
// in document order and without duplicates. Links are returned as written;
// the crawler resolves them.
type LinkExtractor struct {
	Selectors []string // defaults to DefaultLinkSelector
}

// NewLinkExtractor creates a LinkExtractor for the given selectors.
func NewLinkExtractor(selectors ...string) *LinkExtractor {
	return &LinkExtractor{Selectors: selectors}
}

// Extract implements webscrape.Extractor.
func (e *LinkExtractor) Extract(_ context.Context, content, _ string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, webscrape.Errorf(webscrape.EINVALID, "failed to parse HTML: %v", err)
	}
	return e.links(doc), nil
}

func (e *LinkExtractor) links(doc *goquery.Document) []string {
	selectors := e.Selectors
	if len(selectors) == 0 {
		selectors = []string{DefaultLinkSelector}
	}

	seen := make(map[string]bool)
	var links []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, exists := sel.Attr("href")
			href = strings.TrimSpace(href)
			if !exists || href == "" || strings.HasPrefix(href, "#") {
				return
			}
			// Skip non-HTTP links (javascript:, mailto:, etc.)
			if isNonHTTPLink(href) {
				return
			}
			if seen[href] {
				return
			}
			seen[href] = true
			links = append(links, href)
		})
	}
	return links
}

var (
	_ webscrape.Extractor     = (*Collector)(nil)
	_ webscrape.ResultCounter = (*Collector)(nil)
)

// Record is one element collected from a page.
type Record struct {
	URL  string
	Text string
}

// Collector records the text of every element matching Selector and follows
// links like a LinkExtractor. It counts records as crawl results.
// It is safe for concurrent use by multiple goroutines.
type Collector struct {
	Selector string
	Links    LinkExtractor

	mu      sync.Mutex
	records []Record
}

// NewCollector creates a Collector for the given element selector.
func NewCollector(selector string) *Collector {
	return &Collector{Selector: selector}
}

// Extract implements webscrape.Extractor.
func (c *Collector) Extract(_ context.Context, content, url string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, webscrape.Errorf(webscrape.EINVALID, "failed to parse HTML: %v", err)
	}

	var found []Record
	doc.Find(c.Selector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text != "" {
			found = append(found, Record{URL: url, Text: text})
		}
	})

	c.mu.Lock()
	c.records = append(c.records, found...)
	c.mu.Unlock()

	return c.Links.links(doc), nil
}

// Results implements webscrape.ResultCounter.
func (c *Collector) Results() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of everything collected so far.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}
