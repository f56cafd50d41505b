package webscrape

import (
	"context"
	"net/http"
	"time"
)

// Request describes a single network attempt.
type Request struct {
	URL          string
	Data         []byte // POST payload; nil means GET
	Headers      map[string]string
	Proxy        string // empty means a direct connection
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// Response is the outcome of one network attempt.
type Response struct {
	Content    string
	FinalURL   string
	StatusCode int
	Header     http.Header
}

// Transport performs exactly one network attempt per call.
type Transport interface {
	// Do fetches req.URL once. Non-2xx responses are returned with a nil
	// error so the caller can classify them; transport failures return
	// ETRANSPORT and bodies above the size cap return EOVERSIZE.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTMLRewriter provides the small amount of HTML awareness the fetcher needs
// to follow client-side redirects.
type HTMLRewriter interface {
	// MetaRedirect returns the absolute target of a meta refresh directive
	// in html, resolved against baseURL.
	MetaRedirect(html, baseURL string) (string, bool)

	// AbsoluteLinks rewrites relative hyperlinks in html to be absolute
	// against baseURL.
	AbsoluteLinks(html, baseURL string) string
}

// Validator decides whether fetched content is acceptable.
type Validator interface {
	Validate(content string) bool
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(content string) bool

// Validate calls f(content).
func (f ValidatorFunc) Validate(content string) bool {
	return f(content)
}

// ProxySource supplies the proxy list for a pool.
type ProxySource interface {
	// Proxies returns the current proxy list. changed is false when the
	// list is unchanged since the previous call.
	Proxies(ctx context.Context) (proxies []string, changed bool, err error)
}
