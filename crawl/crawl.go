// Package crawl provides the download and crawl engine: a caching, retrying
// Downloader with proxy rotation and per-domain throttling, a deduplicating
// Frontier, and a Crawler that schedules URLs across concurrent workers.
package crawl

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/fwojciec/webscrape"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of workers used when Crawler.Workers is unset.
const DefaultWorkers = 10

// Crawler follows links from seed URLs across a pool of workers.
type Crawler struct {
	Downloader *Downloader
	Extractor  webscrape.Extractor
	Filter     *LinkFilter // nil accepts any link on the first seed's domain
	State      *State      // nil keeps counters in memory only
	Order      Order
	Workers    int

	MaxDepth   int // links are followed from pages with depth below this; negative means unlimited
	MaxURLs    int // zero means unlimited
	MaxResults int // zero means unlimited; requires an Extractor implementing ResultCounter
	SeedRoot   bool

	// Generator supplies further seeds once the frontier runs dry.
	Generator iter.Seq[string]
	// Options apply to every download of the crawl.
	Options []Option

	Progress ProgressFunc
	Logger   *slog.Logger
}

// ProgressEvent reports progress during a crawl.
type ProgressEvent struct {
	Type      ProgressType
	Completed int
	URL       string
	Error     error
}

// ProgressType indicates the type of progress event.
type ProgressType int

const (
	ProgressCompleted ProgressType = iota
	ProgressFailed
	ProgressFinished
)

// ProgressFunc is a callback for reporting crawl progress.
type ProgressFunc func(event ProgressEvent)

// pageResult holds the outcome of processing a single URL.
type pageResult struct {
	item    webscrape.FrontierItem
	fetch   *Result
	links   []string
	stop    bool
	skipped bool
}

// Run crawls from seeds until the frontier and generator are exhausted, a
// limit is reached, the extractor returns webscrape.ErrStop, or ctx is
// canceled. The final counters are saved and returned.
func (c *Crawler) Run(ctx context.Context, seeds ...string) (webscrape.CrawlStats, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("crawl_id", uuid.NewString())

	state := c.State
	if state == nil {
		state = NewState(nil, 0)
	}
	state.Start()

	frontier := NewFrontier(c.Order)
	defer frontier.Close()
	if c.Generator != nil {
		frontier.SetGenerator(c.Generator)
	}
	for _, seed := range seeds {
		frontier.Push(seed, 0)
		if c.SeedRoot {
			if root := siteRoot(seed); root != "" {
				frontier.Push(root, 0)
			}
		}
	}

	filter := c.linkFilter(seeds)
	logger.Info("crawl started", "seeds", len(seeds), "workers", c.workers())

	var running atomic.Bool
	running.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	workCh := make(chan webscrape.FrontierItem)
	resultCh := make(chan pageResult)

	for range c.workers() {
		g.Go(func() error {
			for item := range workCh {
				result := pageResult{item: item, skipped: true}
				if running.Load() {
					result = c.process(gctx, logger, filter, item)
				}
				select {
				case resultCh <- result:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}

	counter, _ := c.Extractor.(webscrape.ResultCounter)
	dispatched := 0
	completed := 0
	pending := 0
	var next *webscrape.FrontierItem

	// stopped reports whether no further URL may be dispatched.
	stopped := func() bool {
		switch {
		case !running.Load():
			return true
		case c.MaxURLs > 0 && dispatched >= c.MaxURLs:
			return true
		case c.MaxResults > 0 && counter != nil && counter.Results() >= c.MaxResults:
			return true
		}
		return false
	}

	nextItem := func() {
		if stopped() {
			if next != nil {
				frontier.Requeue(*next)
				next = nil
			}
			return
		}
		if next != nil {
			return
		}
		item, ok := frontier.Pop()
		if !ok && frontier.PullFromGenerator() {
			item, ok = frontier.Pop()
		}
		if ok {
			next = &item
		}
	}

	handle := func(r pageResult) {
		pending--
		if r.skipped {
			frontier.Requeue(r.item)
			return
		}
		if r.stop {
			logger.Info("crawl stop requested", "url", r.item.URL)
			running.Store(false)
		}
		for _, link := range r.links {
			frontier.Push(link, r.item.Depth+1)
		}

		var delta webscrape.CrawlStats
		event := ProgressEvent{Type: ProgressCompleted, URL: r.item.URL}
		switch {
		case r.fetch.FromCache:
			delta.NumCaches = 1
		case r.fetch.OK():
			delta.NumDownloads = 1
		default:
			delta.NumErrors = 1
			event.Type = ProgressFailed
			event.Error = r.fetch.Err
			if event.Error == nil {
				event.Error = webscrape.Errorf(webscrape.ENOTFOUND, "no content for %s", r.item.URL)
			}
		}
		completed++
		event.Completed = completed
		if c.Progress != nil {
			c.Progress(event)
		}
		if err := state.Update(ctx, delta, frontier.Len()); err != nil {
			logger.Warn("state save failed", "error", err)
		}
	}

coordinatorLoop:
	for {
		nextItem()
		if next == nil && pending == 0 {
			break coordinatorLoop
		}

		if next != nil {
			select {
			case <-gctx.Done():
				break coordinatorLoop
			case workCh <- *next:
				dispatched++
				pending++
				next = nil
			case r := <-resultCh:
				handle(r)
			}
			continue
		}

		select {
		case <-gctx.Done():
			break coordinatorLoop
		case r := <-resultCh:
			handle(r)
		}
	}

	if next != nil {
		frontier.Requeue(*next)
		next = nil
	}
	close(workCh)
	_ = g.Wait()

	// Best-effort flushes survive cancellation of ctx.
	flushCtx := context.WithoutCancel(ctx)
	if d := c.Downloader; d.Cache != nil {
		if err := d.Cache.Flush(flushCtx); err != nil {
			logger.Warn("cache flush failed", "error", err)
		}
	}
	state.SetQueueSize(frontier.Len())
	if err := state.Save(flushCtx); err != nil {
		logger.Warn("state save failed", "error", err)
	}

	stats := state.Stats()
	logger.Info("crawl finished",
		"downloads", stats.NumDownloads,
		"caches", stats.NumCaches,
		"errors", stats.NumErrors,
		"queue", stats.QueueSize,
	)
	if c.Progress != nil {
		c.Progress(ProgressEvent{Type: ProgressFinished, Completed: completed})
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// process downloads one URL, runs the extractor and returns the links that
// should be followed.
func (c *Crawler) process(ctx context.Context, logger *slog.Logger, filter *LinkFilter, item webscrape.FrontierItem) pageResult {
	result := pageResult{item: item}
	result.fetch = c.Downloader.Fetch(ctx, item.URL, c.Options...)
	if !result.fetch.OK() || c.Extractor == nil {
		return result
	}

	links, err := c.Extractor.Extract(ctx, result.fetch.Content, item.URL)
	switch {
	case errors.Is(err, webscrape.ErrStop):
		result.stop = true
	case err != nil:
		logger.Warn("extract failed", "url", item.URL, "error", err)
	}

	if c.MaxDepth >= 0 && item.Depth >= c.MaxDepth {
		return result
	}
	for _, link := range links {
		abs, err := Normalize(result.fetch.FinalURL, link)
		if err != nil {
			continue
		}
		if filter.Valid(ctx, abs) {
			result.links = append(result.links, abs)
		}
	}
	return result
}

func (c *Crawler) workers() int {
	if c.Workers <= 0 {
		return DefaultWorkers
	}
	return c.Workers
}

// linkFilter returns the filter for a run, scoped to the first seed's
// domain unless a domain is configured.
func (c *Crawler) linkFilter(seeds []string) *LinkFilter {
	var f LinkFilter
	if c.Filter != nil {
		f = *c.Filter
	}
	if f.Domain == "" && len(seeds) > 0 {
		domainOf := f.DomainFunc
		if domainOf == nil {
			domainOf = ExtractDomain
		}
		f.Domain = domainOf(seeds[0])
	}
	return &f
}

// siteRoot returns the root URL of the site rawURL belongs to.
func siteRoot(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
