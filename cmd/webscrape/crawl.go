package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"

	"github.com/fwojciec/webscrape"
	"github.com/fwojciec/webscrape/crawl"
	"github.com/fwojciec/webscrape/fs"
	"github.com/fwojciec/webscrape/goquery"
	wshttp "github.com/fwojciec/webscrape/http"
	"github.com/fwojciec/webscrape/robotstxt"
	webslog "github.com/fwojciec/webscrape/slog"
)

var crawlOrders = map[string]crawl.Order{
	"breadth":  crawl.BreadthFirst,
	"depth":    crawl.DepthFirst,
	"priority": crawl.Priority,
}

// Run executes the crawl command.
func (c *CrawlCmd) Run(deps *Dependencies) error {
	logger := deps.logger()

	d, err := c.downloader(deps)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}

	filter, err := c.filter(deps, d)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}

	var collector *goquery.Collector
	var extractor webscrape.Extractor = goquery.NewLinkExtractor(c.Links...)
	if c.Select != "" {
		collector = goquery.NewCollector(c.Select)
		collector.Links.Selectors = c.Links
		extractor = collector
	}
	if c.Out != "" {
		extractor = fs.NewPageWriter(c.Out, extractor)
	}

	crawler := &crawl.Crawler{
		Downloader: d,
		Extractor:  webslog.NewLoggingExtractor(extractor, logger),
		Filter:     filter,
		Order:      crawlOrders[c.Order],
		Workers:    c.Workers,
		MaxDepth:   c.MaxDepth,
		MaxURLs:    c.MaxURLs,
		MaxResults: c.MaxResults,
		SeedRoot:   c.SeedRoot,
		Logger:     logger,
		Progress: func(event crawl.ProgressEvent) {
			if event.Type == crawl.ProgressFailed {
				fmt.Fprintf(deps.Stderr, "failed: %s: %s\n", event.URL, webscrape.ErrorMessage(event.Error))
			}
		},
	}
	if deps.State != nil {
		crawler.State = crawl.NewState(deps.State, c.Interval)
	}
	if c.Sitemap {
		sitemap := wshttp.NewSitemap(deps.Transport,
			wshttp.WithUserAgent(filter.UserAgent),
			wshttp.WithLogger(logger),
		)
		crawler.Generator = sitemapURLs(deps.Ctx, sitemap, c.Seeds)
	}

	stats, err := crawler.Run(deps.Ctx, c.Seeds...)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}

	if collector != nil {
		for _, record := range collector.Records() {
			fmt.Fprintf(deps.Stdout, "%s\t%s\n", record.URL, record.Text)
		}
	}
	fmt.Fprintf(deps.Stdout, "Crawled %d pages: %d downloaded, %d cached, %d failed, %d queued\n",
		stats.NumDownloads+stats.NumCaches+stats.NumErrors,
		stats.NumDownloads, stats.NumCaches, stats.NumErrors, stats.QueueSize)
	return nil
}

// filter builds the link filter of the crawl.
func (c *CrawlCmd) filter(deps *Dependencies, d *crawl.Downloader) (*crawl.LinkFilter, error) {
	f := &crawl.LinkFilter{
		UserAgent: d.Settings.UserAgent,
		Cache:     deps.Cache,
		Recrawl:   c.Recrawl,
	}
	if len(d.Settings.UserAgents) > 0 {
		f.UserAgent = d.Settings.UserAgents[0]
	}
	if c.Suffix {
		f.DomainFunc = crawl.PublicSuffixDomain
	}

	var err error
	if f.Allow, err = compile("allow", c.Allow); err != nil {
		return nil, err
	}
	if f.Ban, err = compile("ban", c.Ban); err != nil {
		return nil, err
	}

	if c.Robots {
		f.Robots = robotstxt.NewPolicy(func(ctx context.Context, rawURL string) (string, bool) {
			res := d.Fetch(ctx, rawURL, crawl.WithNumRetries(0), crawl.WithNumRedirects(0))
			return res.Content, res.OK()
		})
	}
	return f, nil
}

// compile compiles an optional regular expression flag.
func compile(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, webscrape.Errorf(webscrape.EINVALID, "invalid --%s pattern %q: %v", name, pattern, err)
	}
	return re, nil
}

// sitemapURLs yields the sitemap URLs of every seed's site in turn.
func sitemapURLs(ctx context.Context, sitemap *wshttp.Sitemap, seeds []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, seed := range seeds {
			for u := range sitemap.URLs(ctx, seed) {
				if !yield(u) {
					return
				}
			}
		}
	}
}
