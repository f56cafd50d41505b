package crawl

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/webscrape"
)

// Shared holds state that every Downloader and worker in a process shares:
// proxy reputation, sticky user agents and the throttle clock.
type Shared struct {
	Health   *ProxyHealth
	Agents   *UserAgents
	Throttle webscrape.Throttle
}

// NewShared creates a Shared context with an unlimited DomainThrottle.
func NewShared() *Shared {
	return &Shared{
		Health:   NewProxyHealth(),
		Agents:   NewUserAgents(),
		Throttle: NewDomainThrottle(),
	}
}

// ProxyHealth counts consecutive errors per proxy.
// It is safe for concurrent use by multiple goroutines.
type ProxyHealth struct {
	mu     sync.Mutex
	errors map[string]int
}

// NewProxyHealth creates an empty ProxyHealth.
func NewProxyHealth() *ProxyHealth {
	return &ProxyHealth{errors: make(map[string]int)}
}

// RecordSuccess resets the error count of proxy.
func (h *ProxyHealth) RecordSuccess(proxy string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.errors, proxy)
}

// RecordError increments the error count of proxy and returns it.
func (h *ProxyHealth) RecordError(proxy string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors[proxy]++
	return h.errors[proxy]
}

// Errors returns the current error count of proxy.
func (h *ProxyHealth) Errors(proxy string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errors[proxy]
}

// UserAgents assigns each proxy a user agent once and keeps it.
type UserAgents struct {
	mu       sync.Mutex
	assigned map[string]string
}

// NewUserAgents creates an empty assignment table.
func NewUserAgents() *UserAgents {
	return &UserAgents{assigned: make(map[string]string)}
}

// For returns the agent assigned to proxy, choosing one from candidates on
// first use. Returns "" when candidates is empty and nothing was assigned.
func (u *UserAgents) For(proxy string, candidates []string) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	if agent, ok := u.assigned[proxy]; ok {
		return agent
	}
	if len(candidates) == 0 {
		return ""
	}
	agent := candidates[rand.IntN(len(candidates))]
	u.assigned[proxy] = agent
	return agent
}

// ProxyPool is the active proxy list of a session.
// It is safe for concurrent use by multiple goroutines.
type ProxyPool struct {
	mu       sync.Mutex
	active   []string
	static   []string
	removed  map[string]bool
	source   webscrape.ProxySource
	interval time.Duration
	checked  time.Time
	now      func() time.Time
}

// PoolOption configures a ProxyPool.
type PoolOption func(*ProxyPool)

// WithProxySource reloads the pool from src at most once per interval.
func WithProxySource(src webscrape.ProxySource, interval time.Duration) PoolOption {
	return func(p *ProxyPool) {
		p.source = src
		p.interval = interval
	}
}

// NewProxyPool creates a pool of proxies. An empty pool connects directly.
// The given proxies stay in the pool across reloads from a source.
func NewProxyPool(proxies []string, opts ...PoolOption) *ProxyPool {
	p := &ProxyPool{
		active:  slices.Clone(proxies),
		static:  slices.Clone(proxies),
		removed: make(map[string]bool),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Select returns a random proxy from override if it is non-empty, otherwise
// from the active list. Returns "" for a direct connection.
func (p *ProxyPool) Select(ctx context.Context, override []string) string {
	if len(override) > 0 {
		return override[rand.IntN(len(override))]
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reloadLocked(ctx)
	if len(p.active) == 0 {
		return ""
	}
	return p.active[rand.IntN(len(p.active))]
}

// Remove evicts proxy for the rest of the session, including later reloads.
func (p *ProxyPool) Remove(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.removed[proxy] = true
	p.active = slices.DeleteFunc(p.active, func(s string) bool { return s == proxy })
}

// Active returns a copy of the active proxy list.
func (p *ProxyPool) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.active)
}

// Reload fetches the proxy list from the source regardless of interval.
func (p *ProxyPool) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil {
		return nil
	}
	p.checked = p.now()
	return p.loadLocked(ctx)
}

func (p *ProxyPool) reloadLocked(ctx context.Context) {
	if p.source == nil {
		return
	}
	now := p.now()
	if !p.checked.IsZero() && now.Sub(p.checked) < p.interval {
		return
	}
	p.checked = now
	// A failed reload keeps the current list.
	_ = p.loadLocked(ctx)
}

func (p *ProxyPool) loadLocked(ctx context.Context) error {
	proxies, changed, err := p.source.Proxies(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	merged := slices.Concat(p.static, proxies)
	slices.Sort(merged)
	merged = slices.Compact(merged)
	p.active = slices.DeleteFunc(merged, func(s string) bool { return p.removed[s] })
	return nil
}
