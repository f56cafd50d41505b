package crawl

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fwojciec/webscrape"
	"golang.org/x/time/rate"
)

var _ webscrape.Throttle = (*DomainThrottle)(nil)

// DomainThrottle spaces requests that share a ThrottleKey.
//
// Each key has a next eligible time. A caller reserves the slot under the
// mutex, pushes the next eligible time forward by a randomized delay, and
// then sleeps on a timer until its slot arrives. Callers with different keys
// never wait on each other.
type DomainThrottle struct {
	mu       sync.Mutex
	next     map[webscrape.ThrottleKey]time.Time
	limiters map[webscrape.ThrottleKey]*rate.Limiter
	rps      float64
	now      func() time.Time
	random   func() float64
}

// ThrottleOption configures a DomainThrottle.
type ThrottleOption func(*DomainThrottle)

// WithRateLimit additionally caps each key at rps requests per second using
// a token bucket with a burst of 1.
func WithRateLimit(rps float64) ThrottleOption {
	return func(d *DomainThrottle) {
		d.rps = rps
	}
}

// WithRandom overrides the source of randomness used for variance.
// f must return values in [0, 1).
func WithRandom(f func() float64) ThrottleOption {
	return func(d *DomainThrottle) {
		d.random = f
	}
}

// NewDomainThrottle creates a new DomainThrottle.
func NewDomainThrottle(opts ...ThrottleOption) *DomainThrottle {
	d := &DomainThrottle{
		next:     make(map[webscrape.ThrottleKey]time.Time),
		limiters: make(map[webscrape.ThrottleKey]*rate.Limiter),
		now:      time.Now,
		random:   rand.Float64,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wait blocks until a request for key may start. The following request for
// the same key becomes eligible delay*(1+variance*(r-0.5)) later, r uniform
// in [0, 1).
// Returns an error if the context is canceled before the wait completes.
func (d *DomainThrottle) Wait(ctx context.Context, key webscrape.ThrottleKey, delay time.Duration, variance float64) error {
	start, limiter := d.reserve(key, delay, variance)

	if wait := start.Sub(d.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

// reserve returns the time the caller may start and the key's token bucket.
func (d *DomainThrottle) reserve(key webscrape.ThrottleKey, delay time.Duration, variance float64) (time.Time, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var limiter *rate.Limiter
	if d.rps > 0 {
		limiter = d.limiters[key]
		if limiter == nil {
			limiter = rate.NewLimiter(rate.Limit(d.rps), 1)
			d.limiters[key] = limiter
		}
	}

	now := d.now()
	start := now
	if next, ok := d.next[key]; ok && next.After(now) {
		start = next
	}
	if delay > 0 {
		interval := time.Duration(float64(delay) * (1 + variance*(d.random()-0.5)))
		d.next[key] = start.Add(interval)
	}
	return start, limiter
}
