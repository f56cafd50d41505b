package crawl_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/webscrape/crawl"
	"github.com/fwojciec/webscrape/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyHealth(t *testing.T) {
	t.Parallel()

	h := crawl.NewProxyHealth()

	assert.Equal(t, 1, h.RecordError("p1"))
	assert.Equal(t, 2, h.RecordError("p1"))
	assert.Equal(t, 1, h.RecordError("p2"))
	assert.Equal(t, 2, h.Errors("p1"))

	h.RecordSuccess("p1")

	assert.Equal(t, 0, h.Errors("p1"))
	assert.Equal(t, 1, h.Errors("p2"))
}

func TestUserAgents_For(t *testing.T) {
	t.Parallel()

	t.Run("keeps the first assignment", func(t *testing.T) {
		t.Parallel()

		u := crawl.NewUserAgents()
		candidates := []string{"agent-a", "agent-b", "agent-c"}

		first := u.For("p1", candidates)
		for range 20 {
			assert.Equal(t, first, u.For("p1", candidates))
		}
		assert.Contains(t, candidates, first)
		assert.Equal(t, first, u.For("p1", nil))
	})

	t.Run("returns empty without candidates", func(t *testing.T) {
		t.Parallel()

		u := crawl.NewUserAgents()

		assert.Empty(t, u.For("p1", nil))
	})
}

func TestProxyPool_Select(t *testing.T) {
	t.Parallel()

	t.Run("empty pool connects directly", func(t *testing.T) {
		t.Parallel()

		p := crawl.NewProxyPool(nil)

		assert.Empty(t, p.Select(context.Background(), nil))
	})

	t.Run("picks from the active list", func(t *testing.T) {
		t.Parallel()

		proxies := []string{"10.0.0.1:8080", "10.0.0.2:8080"}
		p := crawl.NewProxyPool(proxies)

		for range 20 {
			assert.Contains(t, proxies, p.Select(context.Background(), nil))
		}
	})

	t.Run("override takes precedence", func(t *testing.T) {
		t.Parallel()

		p := crawl.NewProxyPool([]string{"10.0.0.1:8080"})

		assert.Equal(t, "10.0.0.9:3128", p.Select(context.Background(), []string{"10.0.0.9:3128"}))
	})

	t.Run("removed proxies are never selected", func(t *testing.T) {
		t.Parallel()

		p := crawl.NewProxyPool([]string{"bad:1", "good:1"})
		p.Remove("bad:1")

		for range 20 {
			assert.Equal(t, "good:1", p.Select(context.Background(), nil))
		}
		assert.Equal(t, []string{"good:1"}, p.Active())
	})
}

func TestProxyPool_source(t *testing.T) {
	t.Parallel()

	t.Run("loads on first use and respects the interval", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		src := &mock.ProxySource{
			ProxiesFn: func(context.Context) ([]string, bool, error) {
				calls.Add(1)
				return []string{"a:1", "b:1"}, true, nil
			},
		}
		p := crawl.NewProxyPool(nil, crawl.WithProxySource(src, time.Hour))

		p.Select(context.Background(), nil)
		p.Select(context.Background(), nil)

		assert.Equal(t, int32(1), calls.Load())
		assert.ElementsMatch(t, []string{"a:1", "b:1"}, p.Active())
	})

	t.Run("reload does not restore removed proxies", func(t *testing.T) {
		t.Parallel()

		src := &mock.ProxySource{
			ProxiesFn: func(context.Context) ([]string, bool, error) {
				return []string{"a:1", "b:1"}, true, nil
			},
		}
		p := crawl.NewProxyPool(nil, crawl.WithProxySource(src, time.Hour))
		require.NoError(t, p.Reload(context.Background()))
		p.Remove("a:1")

		require.NoError(t, p.Reload(context.Background()))

		assert.Equal(t, []string{"b:1"}, p.Active())
	})

	t.Run("reload keeps the initial proxies", func(t *testing.T) {
		t.Parallel()

		src := &mock.ProxySource{
			ProxiesFn: func(context.Context) ([]string, bool, error) {
				return []string{"b:1", "a:1"}, true, nil
			},
		}
		p := crawl.NewProxyPool([]string{"a:1", "c:1"}, crawl.WithProxySource(src, time.Hour))

		require.NoError(t, p.Reload(context.Background()))
		assert.Equal(t, []string{"a:1", "b:1", "c:1"}, p.Active())

		p.Remove("c:1")
		require.NoError(t, p.Reload(context.Background()))
		assert.Equal(t, []string{"a:1", "b:1"}, p.Active())
	})

	t.Run("unchanged source keeps the list", func(t *testing.T) {
		t.Parallel()

		src := &mock.ProxySource{
			ProxiesFn: func(context.Context) ([]string, bool, error) {
				return nil, false, nil
			},
		}
		p := crawl.NewProxyPool([]string{"a:1"}, crawl.WithProxySource(src, 0))

		require.NoError(t, p.Reload(context.Background()))

		assert.Equal(t, []string{"a:1"}, p.Active())
	})

	t.Run("failed reload keeps the list", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("unreadable")
		src := &mock.ProxySource{
			ProxiesFn: func(context.Context) ([]string, bool, error) {
				return nil, true, wantErr
			},
		}
		p := crawl.NewProxyPool([]string{"a:1"}, crawl.WithProxySource(src, 0))

		err := p.Reload(context.Background())

		require.ErrorIs(t, err, wantErr)
		assert.Equal(t, "a:1", p.Select(context.Background(), nil))
	})
}
