package mock

import (
	"context"
	"time"

	"github.com/fwojciec/webscrape"
)

var _ webscrape.Throttle = (*Throttle)(nil)

// Throttle is a mock implementation of webscrape.Throttle.
type Throttle struct {
	WaitFn func(ctx context.Context, key webscrape.ThrottleKey, delay time.Duration, variance float64) error
}

func (t *Throttle) Wait(ctx context.Context, key webscrape.ThrottleKey, delay time.Duration, variance float64) error {
	return t.WaitFn(ctx, key, delay, variance)
}
