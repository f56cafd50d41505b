package mock

import (
	"context"

	"github.com/fwojciec/webscrape"
)

var _ webscrape.StateStore = (*StateStore)(nil)

// StateStore is a mock implementation of webscrape.StateStore.
type StateStore struct {
	SaveFn func(ctx context.Context, stats webscrape.CrawlStats) error
	LoadFn func(ctx context.Context) (webscrape.CrawlStats, error)
}

func (s *StateStore) Save(ctx context.Context, stats webscrape.CrawlStats) error {
	return s.SaveFn(ctx, stats)
}

func (s *StateStore) Load(ctx context.Context) (webscrape.CrawlStats, error) {
	return s.LoadFn(ctx)
}
