package main

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/webscrape"
	"github.com/fwojciec/webscrape/crawl"
	"github.com/fwojciec/webscrape/fs"
	"github.com/fwojciec/webscrape/goquery"
	"github.com/fwojciec/webscrape/sqlite"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx       context.Context
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *slog.Logger
	Transport webscrape.Transport
	Cache     webscrape.Cache
	Store     *sqlite.Cache
	Sitemaps  webscrape.SitemapService
	State     webscrape.StateStore
}

// logger returns the configured logger or one that discards everything.
func (d *Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config  kong.ConfigFlag `help:"YAML file with flag defaults"`
	Cache   string          `default:"${cache_path}" env:"WEBSCRAPE_CACHE" help:"Cache database path"`
	State   string          `default:"${state_path}" env:"WEBSCRAPE_STATE" help:"Crawl state file path"`
	Verbose bool            `short:"v" help:"Log every request and cache access"`

	Get     GetCmd     `cmd:"" help:"Download URLs and print their content"`
	Crawl   CrawlCmd   `cmd:"" help:"Crawl a website from seed URLs"`
	Sitemap SitemapCmd `cmd:"" help:"List the URLs published in a site's sitemaps"`
	Status  StatusCmd  `cmd:"" help:"Show the counters of the last crawl"`
	Caches  CacheCmd   `cmd:"" name:"cache" help:"Inspect and maintain the response cache"`
}

// FetchFlags configures downloads. It is embedded by every command that
// downloads pages.
type FetchFlags struct {
	Delay     time.Duration     `default:"5s" help:"Minimum delay between requests to the same domain"`
	Variance  float64           `default:"0.5" help:"Random variation of the delay, from 0 to 1"`
	Rate      float64           `help:"Maximum requests per second to the same domain; 0 means no limit"`
	Timeout   time.Duration     `default:"30s" help:"Timeout of a single attempt"`
	Retries   int               `default:"1" help:"Attempts after the first failed one"`
	Redirects int               `default:"5" help:"Meta refresh redirects to follow"`
	Proxy     []string          `short:"x" help:"Proxy to download through (repeatable)"`
	ProxyFile string            `type:"path" help:"File listing more proxies, one per line; reloaded when it changes"`
	UserAgent []string          `short:"A" help:"User agent; several are assigned to proxies in turn (repeatable)"`
	Header    map[string]string `short:"H" help:"Extra request header as name=value (repeatable)"`
	Data      string            `short:"d" help:"POST this form-encoded payload"`
	Partition string            `help:"Throttle separately from other downloads of the same domain"`
	Pattern   string            `help:"Regular expression valid content must match"`
	MaxSize   int               `help:"Reject content larger than this many bytes"`
	HTML      bool              `help:"Reject content that does not look like HTML"`
	ASCII     bool              `help:"Strip non-ASCII characters from content"`
	Accept    []int             `help:"Client error status codes that are not failures (repeatable)"`
	Default   string            `help:"Content used when a download fails"`
	Refresh   bool              `help:"Ignore cached content and download again"`
	Offline   bool              `help:"Only return cached content"`
}

// GetCmd is the "get" subcommand.
type GetCmd struct {
	URLs []string `arg:"" name:"url" help:"URLs to download"`
	Out  string   `short:"o" type:"path" help:"Save pages below this directory instead of printing them"`

	FetchFlags `embed:""`
}

// CrawlCmd is the "crawl" subcommand.
type CrawlCmd struct {
	Seeds []string `arg:"" name:"seed" help:"URLs to start from"`

	MaxDepth   int      `default:"1" help:"Follow links from pages up to this depth; negative means unlimited"`
	MaxURLs    int      `name:"max-urls" help:"Stop after downloading this many URLs"`
	MaxResults int      `help:"Stop once this many records were collected"`
	Workers    int      `short:"w" default:"10" help:"Concurrent downloads"`
	Order      string   `default:"breadth" enum:"breadth,depth,priority" help:"Crawl order (breadth, depth, priority)"`
	Allow      string   `help:"Only follow links matching this regular expression"`
	Ban        string   `help:"Never follow links matching this regular expression"`
	Robots     bool     `help:"Respect robots.txt"`
	Sitemap    bool     `help:"Seed the crawl from the site's sitemaps"`
	SeedRoot   bool     `default:"true" negatable:"" help:"Also crawl the root of each seed's site"`
	Recrawl    bool     `help:"Follow links that are already cached"`
	Suffix     bool     `help:"Match domains with the public suffix list"`
	Links      []string `help:"CSS selectors of links to follow (repeatable)"`
	Select     string   `short:"s" help:"Collect the text of elements matching this CSS selector"`
	Out        string   `short:"o" type:"path" help:"Save crawled pages below this directory"`

	Interval time.Duration `default:"10s" help:"How often the crawl state is saved"`

	FetchFlags `embed:""`
}

// SitemapCmd is the "sitemap" subcommand.
type SitemapCmd struct {
	URL     string   `arg:"" help:"Site URL"`
	Include []string `short:"i" help:"Only list URLs matching this regular expression (repeatable)"`
	Exclude []string `short:"e" help:"Skip URLs matching this regular expression (repeatable)"`
}

// StatusCmd is the "status" subcommand.
type StatusCmd struct {
	JSON bool `help:"Print the state as JSON"`
}

// CacheCmd groups the cache maintenance subcommands.
type CacheCmd struct {
	Keys   CacheKeysCmd   `cmd:"" help:"List cached keys"`
	Show   CacheShowCmd   `cmd:"" help:"Print a cached value"`
	Delete CacheDeleteCmd `cmd:"" help:"Delete a cached key"`
	Clear  CacheClearCmd  `cmd:"" help:"Delete every cached key"`
	Merge  CacheMergeCmd  `cmd:"" help:"Copy the entries of another cache database"`
}

// CacheKeysCmd is the "cache keys" subcommand.
type CacheKeysCmd struct {
	Match string `short:"m" help:"Only list keys matching this regular expression"`
}

// CacheShowCmd is the "cache show" subcommand.
type CacheShowCmd struct {
	Key string `arg:"" help:"Cache key, usually a URL"`
}

// CacheDeleteCmd is the "cache delete" subcommand.
type CacheDeleteCmd struct {
	Keys []string `arg:"" name:"key" help:"Cache keys to delete"`
}

// CacheClearCmd is the "cache clear" subcommand.
type CacheClearCmd struct {
	Force bool `help:"Confirm deletion"`
}

// CacheMergeCmd is the "cache merge" subcommand.
type CacheMergeCmd struct {
	Path     string `arg:"" type:"existingfile" help:"Cache database to merge from"`
	Override bool   `help:"Replace entries that exist in both caches"`
}

// options converts the flags into download options.
func (f *FetchFlags) options() ([]crawl.Option, error) {
	opts := []crawl.Option{
		crawl.WithDelay(f.Delay),
		crawl.WithVariance(f.Variance),
		crawl.WithTimeout(f.Timeout),
		crawl.WithNumRetries(f.Retries),
		crawl.WithNumRedirects(f.Redirects),
		crawl.WithPartition(f.Partition),
		crawl.WithMaxSize(f.MaxSize),
		crawl.WithForceHTML(f.HTML),
		crawl.WithForceASCII(f.ASCII),
		crawl.WithDefault(f.Default),
		crawl.WithReadCache(!f.Refresh),
		crawl.WithUseNetwork(!f.Offline),
	}
	switch len(f.UserAgent) {
	case 0:
	case 1:
		opts = append(opts, crawl.WithUserAgent(f.UserAgent[0]))
	default:
		opts = append(opts, crawl.WithUserAgents(f.UserAgent...))
	}
	if len(f.Header) > 0 {
		opts = append(opts, crawl.WithHeaders(f.Header))
	}
	if f.Data != "" {
		opts = append(opts, crawl.WithData([]byte(f.Data)))
	}
	if len(f.Accept) > 0 {
		opts = append(opts, crawl.WithAcceptableErrors(f.Accept...))
	}
	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, webscrape.Errorf(webscrape.EINVALID, "invalid pattern %q: %v", f.Pattern, err)
		}
		opts = append(opts, crawl.WithPattern(re))
	}
	return opts, nil
}

// downloader builds a Downloader for the flags.
func (f *FetchFlags) downloader(deps *Dependencies) (*crawl.Downloader, error) {
	opts, err := f.options()
	if err != nil {
		return nil, err
	}

	d := crawl.NewDownloader(deps.Transport, deps.Cache, opts...)
	d.Rewriter = goquery.NewRewriter()
	d.Logger = deps.logger()

	switch {
	case f.Rate < 0:
		return nil, webscrape.Errorf(webscrape.EINVALID, "invalid rate %v: must not be negative", f.Rate)
	case f.Rate > 0:
		d.Shared.Throttle = crawl.NewDomainThrottle(crawl.WithRateLimit(f.Rate))
	}

	switch {
	case f.ProxyFile != "":
		d.Pool = crawl.NewProxyPool(f.Proxy, crawl.WithProxySource(fs.NewProxyFile(f.ProxyFile), time.Minute))
		if err := d.Pool.Reload(deps.Ctx); err != nil {
			return nil, err
		}
	case len(f.Proxy) > 0:
		d.Pool = crawl.NewProxyPool(f.Proxy)
	}
	return d, nil
}
