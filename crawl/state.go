package crawl

import (
	"context"
	"sync"
	"time"

	"github.com/fwojciec/webscrape"
)

// State accumulates crawl counters and saves them periodically.
// It is safe for concurrent use by multiple goroutines.
type State struct {
	Store    webscrape.StateStore // nil keeps counters in memory only
	Interval time.Duration        // minimum time between saves triggered by Update

	mu       sync.Mutex
	stats    webscrape.CrawlStats
	started  time.Time
	lastSave time.Time
	now      func() time.Time
}

// NewState creates a State that saves to store at most once per interval.
func NewState(store webscrape.StateStore, interval time.Duration) *State {
	return &State{
		Store:    store,
		Interval: interval,
		now:      time.Now,
	}
}

// Start marks the beginning of the crawl for duration accounting. Calling it
// again has no effect.
func (s *State) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		s.started = s.clock()
		s.lastSave = s.started
	}
}

// Update adds the download, error and cache counts of delta, records the
// current queue size, and saves if more than Interval passed since the
// last save.
func (s *State) Update(ctx context.Context, delta webscrape.CrawlStats, queueSize int) error {
	s.mu.Lock()
	s.stats.NumDownloads += delta.NumDownloads
	s.stats.NumErrors += delta.NumErrors
	s.stats.NumCaches += delta.NumCaches
	s.stats.QueueSize = queueSize
	due := s.Store != nil && s.clock().Sub(s.lastSave) > s.Interval
	s.mu.Unlock()

	if !due {
		return nil
	}
	return s.Save(ctx)
}

// SetQueueSize records the number of URLs still waiting.
func (s *State) SetQueueSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.QueueSize = n
}

// Stats returns the current counters including elapsed time.
func (s *State) Stats() webscrape.CrawlStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Save writes the current counters to the store.
func (s *State) Save(ctx context.Context) error {
	s.mu.Lock()
	stats := s.snapshotLocked()
	s.lastSave = s.clock()
	s.mu.Unlock()

	if s.Store == nil {
		return nil
	}
	return s.Store.Save(ctx, stats)
}

func (s *State) snapshotLocked() webscrape.CrawlStats {
	stats := s.stats
	if !s.started.IsZero() {
		stats.DurationSecs = s.clock().Sub(s.started).Seconds()
	}
	return stats
}

func (s *State) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
