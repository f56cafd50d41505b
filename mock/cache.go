package mock

import (
	"context"

	"github.com/fwojciec/webscrape"
)

var _ webscrape.Cache = (*Cache)(nil)

// Cache is a mock implementation of webscrape.Cache.
type Cache struct {
	GetFn      func(ctx context.Context, key string) (string, error)
	SetFn      func(ctx context.Context, key, value string) error
	GetMetaFn  func(ctx context.Context, key string) (map[string]string, error)
	SetMetaFn  func(ctx context.Context, key string, meta map[string]string) error
	ContainsFn func(ctx context.Context, key string) bool
	ClearFn    func(ctx context.Context) error
	FlushFn    func(ctx context.Context) error
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.GetFn(ctx, key)
}

func (c *Cache) Set(ctx context.Context, key, value string) error {
	return c.SetFn(ctx, key, value)
}

func (c *Cache) GetMeta(ctx context.Context, key string) (map[string]string, error) {
	return c.GetMetaFn(ctx, key)
}

func (c *Cache) SetMeta(ctx context.Context, key string, meta map[string]string) error {
	return c.SetMetaFn(ctx, key, meta)
}

func (c *Cache) Contains(ctx context.Context, key string) bool {
	return c.ContainsFn(ctx, key)
}

func (c *Cache) Clear(ctx context.Context) error {
	return c.ClearFn(ctx)
}

func (c *Cache) Flush(ctx context.Context) error {
	return c.FlushFn(ctx)
}
