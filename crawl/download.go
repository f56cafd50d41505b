package crawl

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/webscrape"
	"golang.org/x/sync/errgroup"
)

// htmlPattern is the loose check used by ForceHTML.
var htmlPattern = regexp.MustCompile(`(?i)html|head|body`)

// Downloader fetches URLs through a cache, a proxy pool and a per-domain
// throttle, retrying failed attempts.
type Downloader struct {
	Transport webscrape.Transport
	Cache     webscrape.Cache        // nil disables caching
	Rewriter  webscrape.HTMLRewriter // nil disables meta refresh handling
	Pool      *ProxyPool
	Shared    *Shared
	Settings  Settings
	Logger    *slog.Logger
}

// NewDownloader creates a Downloader with DefaultSettings modified by opts,
// a fresh Shared context and an empty proxy pool.
func NewDownloader(transport webscrape.Transport, cache webscrape.Cache, opts ...Option) *Downloader {
	return &Downloader{
		Transport: transport,
		Cache:     cache,
		Pool:      NewProxyPool(nil),
		Shared:    NewShared(),
		Settings:  DefaultSettings().with(opts...),
		Logger:    slog.New(slog.DiscardHandler),
	}
}

// Result describes the outcome of a download.
type Result struct {
	URL        string
	Content    string // Default when nothing was obtained
	FinalURL   string
	StatusCode int   // of the last network attempt
	Err        error // last failure; nil on success
	FromCache  bool
	Attempts   int // network attempts, including redirect hops

	found bool
}

// OK reports whether content was obtained, from the cache or the network.
func (r *Result) OK() bool {
	return r.found
}

// CacheKey returns the cache key for a request: the URL, followed by a
// digest of the payload for POST requests.
func CacheKey(rawURL string, data []byte) string {
	if data == nil {
		return rawURL
	}
	return rawURL + " " + strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Get downloads rawURL and returns its content, or the configured default.
// Failures never surface as errors; use Fetch to inspect them.
func (d *Downloader) Get(ctx context.Context, rawURL string, opts ...Option) string {
	return d.Fetch(ctx, rawURL, opts...).Content
}

// Fetch downloads rawURL and reports what happened.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, opts ...Option) *Result {
	s := d.Settings.with(opts...)
	return d.fetch(ctx, rawURL, s, s.NumRedirects, true)
}

func (d *Downloader) fetch(ctx context.Context, rawURL string, s Settings, redirects int, top bool) *Result {
	key := CacheKey(rawURL, s.Data)
	res := &Result{URL: rawURL, FinalURL: rawURL}
	retries := s.NumRetries

	if s.ReadCache && d.Cache != nil {
		content, err := d.Cache.Get(ctx, key)
		switch {
		case err == nil:
			valid := content != "" && s.valid(content)
			if valid || retries <= 0 {
				res.FromCache = true
				res.found = valid
				res.Content = s.Default
				if valid {
					res.Content = content
				}
				if meta, err := d.Cache.GetMeta(ctx, key); err == nil && meta[webscrape.MetaFinalURL] != "" {
					res.FinalURL = meta[webscrape.MetaFinalURL]
				}
				return res
			}
			// A failed or invalid cached result gets one fewer attempt.
			retries--
		case webscrape.ErrorCode(err) != webscrape.ENOTFOUND:
			d.Logger.Warn("cache read failed", "url", rawURL, "error", err)
		}
	}

	if !s.UseNetwork {
		res.Content = s.Default
		res.Err = webscrape.Errorf(webscrape.ENOTFOUND, "%s is not cached", rawURL)
		return res
	}

	content, obtained := d.attempt(ctx, rawURL, s, retries, res)

	if obtained && redirects > 0 && d.Rewriter != nil {
		if target, ok := d.Rewriter.MetaRedirect(content, res.FinalURL); ok && target != rawURL && target != res.FinalURL {
			next := s
			next.Data = nil
			hop := d.fetch(ctx, target, next, redirects-1, false)
			res.Attempts += hop.Attempts
			res.FinalURL = hop.FinalURL
			res.StatusCode = hop.StatusCode
			res.Err = hop.Err
			content, obtained = hop.Content, hop.found
			if !obtained {
				content = ""
			}
			if top && obtained {
				content = d.Rewriter.AbsoluteLinks(content, rawURL)
			}
		}
	}

	if obtained {
		switch {
		case s.MaxSize > 0 && len(content) > s.MaxSize:
			content, obtained = "", false
			res.Err = webscrape.Errorf(webscrape.EOVERSIZE, "content of %s exceeds %d bytes", rawURL, s.MaxSize)
		case s.ForceHTML && !htmlPattern.MatchString(content):
			content, obtained = "", false
			res.Err = webscrape.Errorf(webscrape.EMISMATCH, "content of %s is not html", rawURL)
		case s.ForceASCII:
			content = toASCII(content)
		}
	}

	// An interrupted fetch says nothing about the URL, so it is not cached.
	if s.WriteCache && d.Cache != nil && (obtained || ctx.Err() == nil) {
		if err := d.Cache.Set(ctx, key, content); err != nil {
			d.Logger.Warn("cache write failed", "url", rawURL, "error", err)
		}
		if res.FinalURL != rawURL {
			meta := map[string]string{webscrape.MetaFinalURL: res.FinalURL}
			if err := d.Cache.SetMeta(ctx, key, meta); err != nil {
				d.Logger.Warn("cache meta write failed", "url", rawURL, "error", err)
			}
		}
	}

	res.found = obtained
	res.Content = s.Default
	if obtained {
		res.Content = content
	}
	return res
}

// attempt runs the retry loop. It returns the content of the first
// successful attempt, recording diagnostics in res.
func (d *Downloader) attempt(ctx context.Context, rawURL string, s Settings, retries int, res *Result) (string, bool) {
	domain := ExtractDomain(rawURL)
	var failed []string

	for i := 0; i <= retries; i++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return "", false
		}

		proxy := s.Proxy
		if proxy == "" {
			proxy = d.Pool.Select(ctx, s.Proxies)
		}

		key := webscrape.ThrottleKey{Proxy: proxy, Partition: s.Partition, Domain: domain}
		if err := d.Shared.Throttle.Wait(ctx, key, s.Delay, s.Variance); err != nil {
			res.Err = err
			return "", false
		}

		res.Attempts++
		resp, err := d.Transport.Do(ctx, d.request(rawURL, proxy, s))
		if err == nil {
			res.StatusCode = resp.StatusCode
		}
		res.Err = checkResponse(rawURL, resp, err, s)

		switch {
		case res.Err == nil && resp.StatusCode < 400:
			if resp.FinalURL != "" {
				res.FinalURL = resp.FinalURL
			}
			d.succeeded(proxy, failed, s.MaxProxyErrors)
			return resp.Content, true
		case res.Err == nil:
			// Acceptable client error.
			return "", false
		case proxy != "" && webscrape.ErrorCode(res.Err) == webscrape.EINVALID:
			// An unusable proxy address never recovers.
			d.Pool.Remove(proxy)
			d.Logger.Info("proxy removed", "proxy", proxy, "error", res.Err)
			continue
		case !webscrape.IsRetryable(res.Err):
			return "", false
		}

		if proxy != "" {
			count := d.Shared.Health.RecordError(proxy)
			failed = append(failed, proxy)
			d.Logger.Debug("attempt failed", "url", rawURL, "proxy", proxy, "proxy_errors", count, "error", res.Err)
		} else {
			d.Logger.Debug("attempt failed", "url", rawURL, "error", res.Err)
		}
	}
	return "", false
}

// checkResponse classifies the outcome of one attempt. It returns nil for
// usable content and for acceptable client errors.
func checkResponse(rawURL string, resp *webscrape.Response, err error, s Settings) error {
	switch {
	case err != nil:
		return err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if s.acceptable(resp.StatusCode) {
			return nil
		}
		return webscrape.Errorf(webscrape.ECLIENT, "%s returned status %d", rawURL, resp.StatusCode)
	case resp.StatusCode >= 500:
		return webscrape.Errorf(webscrape.ESERVER, "%s returned status %d", rawURL, resp.StatusCode)
	case resp.Content == "" || !s.valid(resp.Content):
		return webscrape.Errorf(webscrape.EMISMATCH, "%s returned unexpected content", rawURL)
	}
	return nil
}

// succeeded resets the health of proxy and evicts proxies that failed
// earlier in the same retry loop once their error count exceeds maxErrors.
func (d *Downloader) succeeded(proxy string, failed []string, maxErrors int) {
	if proxy != "" {
		d.Shared.Health.RecordSuccess(proxy)
	}
	for _, p := range failed {
		if p == proxy {
			continue
		}
		if n := d.Shared.Health.Errors(p); n > maxErrors {
			d.Pool.Remove(p)
			d.Logger.Info("proxy removed", "proxy", p, "errors", n)
		}
	}
}

func (d *Downloader) request(rawURL, proxy string, s Settings) *webscrape.Request {
	ua := s.UserAgent
	if len(s.UserAgents) > 0 {
		ua = d.Shared.Agents.For(proxy, s.UserAgents)
	}
	return &webscrape.Request{
		URL:          rawURL,
		Data:         s.Data,
		Headers:      s.Headers,
		Proxy:        proxy,
		UserAgent:    ua,
		Timeout:      s.Timeout,
		MaxRedirects: s.MaxHTTPRedirects,
	}
}

// toASCII drops every non-ASCII character.
func toASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, s)
}

// GetAll downloads urls concurrently with one worker per proxy and returns
// their contents in input order. A proxy listed twice gets two workers; an
// empty list uses a single direct worker.
func GetAll(ctx context.Context, d *Downloader, urls, proxies []string, opts ...Option) ([]string, error) {
	if len(proxies) == 0 {
		proxies = []string{""}
	}

	results := make([]string, len(urls))
	work := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for i := range urls {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for _, proxy := range proxies {
		workerOpts := opts
		if proxy != "" {
			workerOpts = append(append([]Option{}, opts...), WithProxy(proxy))
		}
		g.Go(func() error {
			for i := range work {
				results[i] = d.Get(gctx, urls[i], workerOpts...)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
