package webscrape

import "context"

// Extractor turns fetched content into follow-up links.
type Extractor interface {
	// Extract returns links found in content fetched from url.
	// Returning ErrStop ends the crawl.
	Extract(ctx context.Context, content, url string) ([]string, error)
}

// ExtractFunc adapts a function to the Extractor interface.
type ExtractFunc func(ctx context.Context, content, url string) ([]string, error)

// Extract calls f(ctx, content, url).
func (f ExtractFunc) Extract(ctx context.Context, content, url string) ([]string, error) {
	return f(ctx, content, url)
}

// ResultCounter is implemented by extractors that collect results, letting
// the crawler stop after a maximum number of results.
type ResultCounter interface {
	Results() int
}

// RobotsPolicy decides whether a URL may be crawled.
type RobotsPolicy interface {
	CanFetch(ctx context.Context, userAgent, url string) bool
}
