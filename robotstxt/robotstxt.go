// Package robotstxt implements webscrape.RobotsPolicy on top of
// github.com/temoto/robotstxt.
package robotstxt

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/fwojciec/webscrape"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// Ensure Policy implements webscrape.RobotsPolicy at compile time.
var _ webscrape.RobotsPolicy = (*Policy)(nil)

// GetFunc fetches a URL and reports whether content was obtained.
type GetFunc func(ctx context.Context, url string) (content string, ok bool)

// Policy answers robots.txt queries, fetching each site's robots.txt once.
// Sites whose robots.txt is missing or unparsable allow everything.
// It is safe for concurrent use by multiple goroutines.
type Policy struct {
	get GetFunc

	mu    sync.Mutex
	rules map[string]*robotstxt.RobotsData
	group singleflight.Group
}

// NewPolicy creates a Policy fetching robots.txt files with get.
func NewPolicy(get GetFunc) *Policy {
	return &Policy{
		get:   get,
		rules: make(map[string]*robotstxt.RobotsData),
	}
}

// CanFetch implements webscrape.RobotsPolicy.
func (p *Policy) CanFetch(ctx context.Context, userAgent, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}

	data := p.robots(ctx, u)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, userAgent)
}

// robots returns the parsed robots.txt of u's site, or nil if it allows
// everything.
func (p *Policy) robots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	site := strings.ToLower(u.Scheme + "://" + u.Host)

	p.mu.Lock()
	data, ok := p.rules[site]
	p.mu.Unlock()
	if ok {
		return data
	}

	v, _, _ := p.group.Do(site, func() (any, error) {
		p.mu.Lock()
		data, ok := p.rules[site]
		p.mu.Unlock()
		if ok {
			return data, nil
		}
		if content, ok := p.get(ctx, site+"/robots.txt"); ok {
			if parsed, err := robotstxt.FromString(content); err == nil {
				data = parsed
			}
		}
		p.mu.Lock()
		p.rules[site] = data
		p.mu.Unlock()
		return data, nil
	})
	data, _ = v.(*robotstxt.RobotsData)
	return data
}
