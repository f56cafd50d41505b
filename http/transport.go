// Package http provides net/http implementations of webscrape.Transport and
// webscrape.SitemapService.
package http

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/fwojciec/webscrape"
	"golang.org/x/net/proxy"
)

// DefaultMaxBodySize caps decoded response bodies.
const DefaultMaxBodySize = 32 << 20

// Ensure Transport implements webscrape.Transport at compile time.
var _ webscrape.Transport = (*Transport)(nil)

// Transport performs single HTTP attempts. It keeps one client per proxy so
// connections are reused across attempts through the same proxy.
type Transport struct {
	maxBodySize int64
	base        *http.Transport

	mu      sync.Mutex
	clients map[string]*http.Client
}

// Option configures a Transport.
type Option func(*Transport)

// WithMaxBodySize sets the largest decoded body accepted. Larger bodies
// fail with EOVERSIZE.
func WithMaxBodySize(n int64) Option {
	return func(t *Transport) {
		t.maxBodySize = n
	}
}

// WithHTTPTransport sets the template cloned for every proxy client.
func WithHTTPTransport(rt *http.Transport) Option {
	return func(t *Transport) {
		t.base = rt
	}
}

// NewTransport creates a new Transport.
func NewTransport(opts ...Option) *Transport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = nil
	t := &Transport{
		maxBodySize: DefaultMaxBodySize,
		base:        base,
		clients:     make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do implements webscrape.Transport.
func (t *Transport) Do(ctx context.Context, req *webscrape.Request) (*webscrape.Response, error) {
	client, err := t.client(req.Proxy)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, redirectsKey{}, req.MaxRedirects)

	method := http.MethodGet
	var body io.Reader
	if req.Data != nil {
		method = http.MethodPost
		body = bytes.NewReader(req.Data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, webscrape.Errorf(webscrape.EINVALID, "invalid request for %s: %v", req.URL, err)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if req.Data != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, webscrape.Errorf(webscrape.ETRANSPORT, "fetch failed: %v", err)
	}

	content, err := t.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &webscrape.Response{
		Content:    string(content),
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}, nil
}

// Close releases idle connections of every client.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		c.CloseIdleConnections()
	}
	return nil
}

func (t *Transport) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, webscrape.Errorf(webscrape.ETRANSPORT, "gzip decode: %v", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, webscrape.Errorf(webscrape.ETRANSPORT, "deflate decode: %v", err)
		}
		reader = zr
		closers = append(closers, zr)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, t.maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, webscrape.Errorf(webscrape.ETRANSPORT, "read body: %v", err)
	}
	if int64(len(body)) > t.maxBodySize {
		return nil, webscrape.Errorf(webscrape.EOVERSIZE, "response body exceeds limit of %d bytes", t.maxBodySize)
	}
	return body, nil
}

// client returns the client for proxyAddr, creating it on first use.
func (t *Transport) client(proxyAddr string) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxyAddr]; ok {
		return c, nil
	}

	rt := t.base.Clone()
	if proxyAddr != "" {
		u, err := ProxyURL(proxyAddr)
		if err != nil {
			return nil, err
		}
		switch u.Scheme {
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, webscrape.Errorf(webscrape.EINVALID, "invalid proxy %q: %v", proxyAddr, err)
			}
			rt.Proxy = nil
			rt.DialContext = dialContext(dialer)
		default:
			rt.Proxy = http.ProxyURL(u)
		}
	}

	c := &http.Client{Transport: rt, CheckRedirect: checkRedirect}
	t.clients[proxyAddr] = c
	return c, nil
}

// ProxyURL parses a proxy address. Addresses without a scheme, including
// the user:pass@host:port form, are HTTP proxies.
func ProxyURL(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, webscrape.Errorf(webscrape.EINVALID, "invalid proxy %q: %v", addr, err)
	}
	if u.Host == "" {
		return nil, webscrape.Errorf(webscrape.EINVALID, "invalid proxy %q: missing host", addr)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
		return u, nil
	default:
		return nil, webscrape.Errorf(webscrape.EINVALID, "unsupported proxy scheme %q", u.Scheme)
	}
}

func dialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

type redirectsKey struct{}

// errTooManyRedirects is wrapped into the ETRANSPORT error of the attempt.
var errTooManyRedirects = errors.New("too many redirects")

// checkRedirect enforces the per-request redirect limit. A limit of zero
// returns the redirect response itself.
func checkRedirect(req *http.Request, via []*http.Request) error {
	limit, _ := req.Context().Value(redirectsKey{}).(int)
	if limit <= 0 {
		return http.ErrUseLastResponse
	}
	if len(via) > limit {
		return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, limit)
	}
	return nil
}
