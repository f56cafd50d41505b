package webscrape

import "context"

// CrawlStats holds the running counters of a crawl.
type CrawlStats struct {
	NumDownloads int     `json:"num_downloads"`
	NumErrors    int     `json:"num_errors"`
	NumCaches    int     `json:"num_caches"`
	QueueSize    int     `json:"queue_size"`
	DurationSecs float64 `json:"duration_secs"`
}

// StateStore persists crawl counters.
type StateStore interface {
	// Save writes stats atomically; readers never see a partial write.
	Save(ctx context.Context, stats CrawlStats) error

	// Load reads the last saved stats.
	// Returns ENOTFOUND if nothing has been saved.
	Load(ctx context.Context) (CrawlStats, error)
}
