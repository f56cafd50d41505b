package mock

import (
	"context"

	"github.com/fwojciec/webscrape"
)

var _ webscrape.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of webscrape.Extractor.
type Extractor struct {
	ExtractFn func(ctx context.Context, content, url string) ([]string, error)
}

func (e *Extractor) Extract(ctx context.Context, content, url string) ([]string, error) {
	return e.ExtractFn(ctx, content, url)
}

var _ webscrape.RobotsPolicy = (*RobotsPolicy)(nil)

// RobotsPolicy is a mock implementation of webscrape.RobotsPolicy.
type RobotsPolicy struct {
	CanFetchFn func(ctx context.Context, userAgent, url string) bool
}

func (p *RobotsPolicy) CanFetch(ctx context.Context, userAgent, url string) bool {
	return p.CanFetchFn(ctx, userAgent, url)
}
