package mock

import (
	"context"

	"github.com/fwojciec/webscrape"
)

var _ webscrape.Transport = (*Transport)(nil)

// Transport is a mock implementation of webscrape.Transport.
type Transport struct {
	DoFn func(ctx context.Context, req *webscrape.Request) (*webscrape.Response, error)
}

func (t *Transport) Do(ctx context.Context, req *webscrape.Request) (*webscrape.Response, error) {
	return t.DoFn(ctx, req)
}

var _ webscrape.HTMLRewriter = (*HTMLRewriter)(nil)

// HTMLRewriter is a mock implementation of webscrape.HTMLRewriter.
type HTMLRewriter struct {
	MetaRedirectFn  func(html, baseURL string) (string, bool)
	AbsoluteLinksFn func(html, baseURL string) string
}

func (r *HTMLRewriter) MetaRedirect(html, baseURL string) (string, bool) {
	return r.MetaRedirectFn(html, baseURL)
}

func (r *HTMLRewriter) AbsoluteLinks(html, baseURL string) string {
	return r.AbsoluteLinksFn(html, baseURL)
}

var _ webscrape.ProxySource = (*ProxySource)(nil)

// ProxySource is a mock implementation of webscrape.ProxySource.
type ProxySource struct {
	ProxiesFn func(ctx context.Context) ([]string, bool, error)
}

func (s *ProxySource) Proxies(ctx context.Context) ([]string, bool, error) {
	return s.ProxiesFn(ctx)
}
