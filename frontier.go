package webscrape

import (
	"context"
	"time"
)

// FrontierItem is a URL waiting to be crawled.
type FrontierItem struct {
	URL   string
	Depth int
	Score float64 // lower is better; used by priority ordering only
}

// URLFrontier manages a crawl queue with deduplication.
type URLFrontier interface {
	// Push adds a URL discovered at depth.
	// Returns false if the URL has already been seen.
	Push(url string, depth int) bool

	// Pop returns the next URL to crawl.
	// Returns false if the frontier is empty.
	Pop() (FrontierItem, bool)

	// Len returns the number of URLs in the queue.
	Len() int

	// Seen returns the depth at which the URL was first discovered.
	Seen(url string) (depth int, ok bool)
}

// ThrottleKey identifies an independent rate-limit bucket.
type ThrottleKey struct {
	Proxy     string
	Partition string
	Domain    string
}

// Throttle enforces a minimum interval between requests sharing a key.
type Throttle interface {
	// Wait blocks until a request for key may start, then reserves the
	// next slot delay later, randomized by variance.
	// Returns an error if the context is canceled.
	Wait(ctx context.Context, key ThrottleKey, delay time.Duration, variance float64) error
}
