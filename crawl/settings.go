package crawl

import (
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/fwojciec/webscrape"
)

// Download defaults.
const (
	DefaultUserAgent        = "Mozilla/5.0"
	DefaultDelay            = 5 * time.Second
	DefaultVariance         = 0.5
	DefaultTimeout          = 30 * time.Second
	DefaultNumRetries       = 1
	DefaultNumRedirects     = 5
	DefaultMaxHTTPRedirects = 10
	DefaultMaxProxyErrors   = 5
)

// Settings controls a single download. Per-call Options are applied to a
// copy, so a Downloader's Settings are never mutated by a call.
type Settings struct {
	ReadCache  bool // return fresh cached content without network I/O
	WriteCache bool // store the outcome, including failures
	UseNetwork bool // when false, cache misses return Default

	NumRetries       int // extra attempts after the first
	NumRedirects     int // meta refresh hops to follow
	MaxHTTPRedirects int
	Timeout          time.Duration // per attempt

	Proxy          string   // pin every attempt to this proxy
	Proxies        []string // choose from these instead of the session pool
	MaxProxyErrors int      // evict a proxy once its error count exceeds this

	Delay     time.Duration
	Variance  float64 // 0-1 randomization of Delay
	Partition string  // separates throttle buckets for the same domain

	Headers    map[string]string
	Data       []byte // POST payload
	UserAgent  string
	UserAgents []string // sticky per proxy when set; overrides UserAgent

	Default          string // returned when no content was obtained
	Validator        webscrape.Validator
	AcceptableErrors []int // 4xx codes that return Default without error
	MaxSize          int   // bytes; zero means unlimited
	ForceHTML        bool
	ForceASCII       bool
}

// DefaultSettings returns the settings used by NewDownloader.
func DefaultSettings() Settings {
	return Settings{
		ReadCache:        true,
		WriteCache:       true,
		UseNetwork:       true,
		NumRetries:       DefaultNumRetries,
		NumRedirects:     DefaultNumRedirects,
		MaxHTTPRedirects: DefaultMaxHTTPRedirects,
		Timeout:          DefaultTimeout,
		MaxProxyErrors:   DefaultMaxProxyErrors,
		Delay:            DefaultDelay,
		Variance:         DefaultVariance,
		UserAgent:        DefaultUserAgent,
	}
}

// with returns a copy of s with opts applied.
func (s Settings) with(opts ...Option) Settings {
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// valid reports whether content passes the configured validator.
func (s *Settings) valid(content string) bool {
	return s.Validator == nil || s.Validator.Validate(content)
}

// acceptable reports whether a 4xx status is allow-listed.
func (s *Settings) acceptable(status int) bool {
	return slices.Contains(s.AcceptableErrors, status)
}

// Option overrides a setting for one call or for a new Downloader.
type Option func(*Settings)

// WithReadCache sets whether cached content is returned.
func WithReadCache(v bool) Option {
	return func(s *Settings) { s.ReadCache = v }
}

// WithWriteCache sets whether outcomes are stored.
func WithWriteCache(v bool) Option {
	return func(s *Settings) { s.WriteCache = v }
}

// WithUseNetwork sets whether cache misses go to the network.
func WithUseNetwork(v bool) Option {
	return func(s *Settings) { s.UseNetwork = v }
}

// WithNumRetries sets how many extra attempts follow a failed one.
func WithNumRetries(n int) Option {
	return func(s *Settings) { s.NumRetries = n }
}

// WithNumRedirects sets how many meta refresh hops are followed.
func WithNumRedirects(n int) Option {
	return func(s *Settings) { s.NumRedirects = n }
}

// WithMaxHTTPRedirects sets how many HTTP redirects one attempt follows.
func WithMaxHTTPRedirects(n int) Option {
	return func(s *Settings) { s.MaxHTTPRedirects = n }
}

// WithTimeout sets the hard limit for each network attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Settings) { s.Timeout = d }
}

// WithProxy pins every attempt to proxy.
func WithProxy(proxy string) Option {
	return func(s *Settings) { s.Proxy = proxy }
}

// WithProxies selects proxies from the given list instead of the pool.
func WithProxies(proxies ...string) Option {
	return func(s *Settings) { s.Proxies = slices.Clone(proxies) }
}

// WithMaxProxyErrors sets the error count a proxy must exceed to be evicted.
func WithMaxProxyErrors(n int) Option {
	return func(s *Settings) { s.MaxProxyErrors = n }
}

// WithDelay sets the politeness delay between requests to one domain.
func WithDelay(d time.Duration) Option {
	return func(s *Settings) { s.Delay = d }
}

// WithVariance sets the randomization applied to the delay.
func WithVariance(v float64) Option {
	return func(s *Settings) { s.Variance = v }
}

// WithPartition sets the throttle partition tag.
func WithPartition(tag string) Option {
	return func(s *Settings) { s.Partition = tag }
}

// WithHeaders sets extra request headers.
func WithHeaders(headers map[string]string) Option {
	return func(s *Settings) { s.Headers = maps.Clone(headers) }
}

// WithData sets a POST payload.
func WithData(data []byte) Option {
	return func(s *Settings) { s.Data = slices.Clone(data) }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Settings) { s.UserAgent = ua }
}

// WithUserAgents assigns each proxy one agent from agents, kept for the
// lifetime of the Shared context.
func WithUserAgents(agents ...string) Option {
	return func(s *Settings) { s.UserAgents = slices.Clone(agents) }
}

// WithDefault sets the content returned when nothing was obtained.
func WithDefault(content string) Option {
	return func(s *Settings) { s.Default = content }
}

// WithPattern accepts only content matching re.
func WithPattern(re *regexp.Regexp) Option {
	return func(s *Settings) { s.Validator = webscrape.ValidatorFunc(re.MatchString) }
}

// WithValidator accepts only content v approves.
func WithValidator(v webscrape.Validator) Option {
	return func(s *Settings) { s.Validator = v }
}

// WithAcceptableErrors allow-lists 4xx status codes.
func WithAcceptableErrors(codes ...int) Option {
	return func(s *Settings) { s.AcceptableErrors = slices.Clone(codes) }
}

// WithMaxSize discards content larger than n bytes.
func WithMaxSize(n int) Option {
	return func(s *Settings) { s.MaxSize = n }
}

// WithForceHTML discards content that does not look like HTML.
func WithForceHTML(v bool) Option {
	return func(s *Settings) { s.ForceHTML = v }
}

// WithForceASCII strips non-ASCII characters from content.
func WithForceASCII(v bool) Option {
	return func(s *Settings) { s.ForceASCII = v }
}
