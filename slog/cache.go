package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/webscrape"
)

// Ensure LoggingCache implements webscrape.Cache.
var _ webscrape.Cache = (*LoggingCache)(nil)

// LoggingCache wraps a Cache with debug logging. Lookups and writes are
// logged at debug level; Clear and Flush at info level.
type LoggingCache struct {
	next   webscrape.Cache
	logger *slog.Logger
}

// NewLoggingCache creates a new LoggingCache.
func NewLoggingCache(next webscrape.Cache, logger *slog.Logger) *LoggingCache {
	return &LoggingCache{next: next, logger: logger}
}

// Get delegates to the wrapped cache and logs hits and misses.
func (c *LoggingCache) Get(ctx context.Context, key string) (value string, err error) {
	defer func(begin time.Time) {
		c.logger.Debug("cache get",
			"key", key,
			"hit", err == nil,
			"bytes", len(value),
			"duration", time.Since(begin),
			"err", unexpected(err),
		)
	}(time.Now())
	return c.next.Get(ctx, key)
}

// Set delegates to the wrapped cache.
func (c *LoggingCache) Set(ctx context.Context, key, value string) (err error) {
	defer func() {
		c.logger.Debug("cache set", "key", key, "bytes", len(value), "err", err)
	}()
	return c.next.Set(ctx, key, value)
}

// GetMeta delegates to the wrapped cache.
func (c *LoggingCache) GetMeta(ctx context.Context, key string) (map[string]string, error) {
	return c.next.GetMeta(ctx, key)
}

// SetMeta delegates to the wrapped cache.
func (c *LoggingCache) SetMeta(ctx context.Context, key string, meta map[string]string) (err error) {
	defer func() {
		c.logger.Debug("cache set meta", "key", key, "fields", len(meta), "err", err)
	}()
	return c.next.SetMeta(ctx, key, meta)
}

// Contains delegates to the wrapped cache.
func (c *LoggingCache) Contains(ctx context.Context, key string) bool {
	return c.next.Contains(ctx, key)
}

// Clear delegates to the wrapped cache and logs the operation.
func (c *LoggingCache) Clear(ctx context.Context) (err error) {
	defer func() {
		c.logger.Info("cache clear", "err", err)
	}()
	return c.next.Clear(ctx)
}

// Flush delegates to the wrapped cache and logs the operation.
func (c *LoggingCache) Flush(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		c.logger.Info("cache flush", "duration", time.Since(begin), "err", err)
	}(time.Now())
	return c.next.Flush(ctx)
}

// unexpected drops ENOTFOUND, which is an ordinary cache miss.
func unexpected(err error) error {
	if webscrape.ErrorCode(err) == webscrape.ENOTFOUND {
		return nil
	}
	return err
}
