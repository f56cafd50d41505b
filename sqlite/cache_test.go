package sqlite_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/webscrape"
	"github.com/fwojciec/webscrape/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db := sqlite.NewDB(sqlite.MemoryPath)
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })
	return db
}

func setupTestCache(t *testing.T, db *sqlite.DB, opts ...sqlite.CacheOption) *sqlite.Cache {
	t.Helper()

	c := sqlite.NewCache(db, opts...)
	require.NoError(t, c.Open(context.Background()))
	return c
}

func countRows(t *testing.T, db *sqlite.DB) int {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM cache").Scan(&n)
	require.NoError(t, err)
	return n
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_GetSet(t *testing.T) {
	t.Parallel()

	t.Run("returns buffered value before flush", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		c := setupTestCache(t, db)

		require.NoError(t, c.Set(ctx, "http://example.com/", "<html>hi</html>"))

		got, err := c.Get(ctx, "http://example.com/")
		require.NoError(t, err)
		assert.Equal(t, "<html>hi</html>", got)
		assert.Equal(t, 0, countRows(t, db))
	})

	t.Run("returns value after flush", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		c := setupTestCache(t, db)

		require.NoError(t, c.Set(ctx, "k", "v"))
		require.NoError(t, c.Flush(ctx))
		assert.Equal(t, 1, countRows(t, db))

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("returns ENOTFOUND for missing key", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t, setupTestDB(t))

		_, err := c.Get(context.Background(), "missing")
		require.Error(t, err)
		assert.Equal(t, webscrape.ENOTFOUND, webscrape.ErrorCode(err))
	})

	t.Run("stores empty string as a negative entry", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := setupTestCache(t, setupTestDB(t))

		require.NoError(t, c.Set(ctx, "gone", ""))
		require.NoError(t, c.Flush(ctx))

		got, err := c.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.True(t, c.Contains(ctx, "gone"))
	})

	t.Run("overwrites existing value", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := setupTestCache(t, setupTestDB(t))

		require.NoError(t, c.Set(ctx, "k", "old"))
		require.NoError(t, c.Flush(ctx))
		require.NoError(t, c.Set(ctx, "k", "new"))
		require.NoError(t, c.Flush(ctx))

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "new", got)
	})

	t.Run("round trips large values", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := setupTestCache(t, setupTestDB(t), sqlite.WithCompressionLevel(11))

		value := strings.Repeat("<p>lorem ipsum</p>", 10000)
		require.NoError(t, c.Set(ctx, "big", value))
		require.NoError(t, c.Flush(ctx))

		got, err := c.Get(ctx, "big")
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})
}

func TestCache_Buffering(t *testing.T) {
	t.Parallel()

	t.Run("flushes when buffer size is exceeded", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		c := setupTestCache(t, db, sqlite.WithBufferSize(2))

		require.NoError(t, c.Set(ctx, "a", "1"))
		require.NoError(t, c.Set(ctx, "b", "2"))
		assert.Equal(t, 0, countRows(t, db))

		require.NoError(t, c.Set(ctx, "c", "3"))
		assert.Equal(t, 3, countRows(t, db))
	})

	t.Run("zero buffer size writes through", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		c := setupTestCache(t, db, sqlite.WithBufferSize(0))

		require.NoError(t, c.Set(ctx, "a", "1"))
		assert.Equal(t, 1, countRows(t, db))
	})

	t.Run("close flushes pending writes", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		c := setupTestCache(t, db)

		require.NoError(t, c.Set(ctx, "a", "1"))
		require.NoError(t, c.Close())
		assert.Equal(t, 1, countRows(t, db))
	})

	t.Run("concurrent writes are all persisted", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		c := setupTestCache(t, db, sqlite.WithBufferSize(7))

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, c.Set(ctx, fmt.Sprintf("key-%d", i), "v"))
			}(i)
		}
		wg.Wait()
		require.NoError(t, c.Flush(ctx))

		assert.Equal(t, 50, countRows(t, db))
	})
}

func TestCache_TTL(t *testing.T) {
	t.Parallel()

	t.Run("stale entries are not returned", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := setupTestCache(t, db, sqlite.WithTTL(time.Hour), sqlite.WithClock(clock.Now))

		require.NoError(t, c.Set(ctx, "k", "v"))
		require.NoError(t, c.Flush(ctx))

		clock.Advance(30 * time.Minute)
		assert.True(t, c.Contains(ctx, "k"))

		clock.Advance(time.Hour)
		assert.False(t, c.Contains(ctx, "k"))
		_, err := c.Get(ctx, "k")
		assert.Equal(t, webscrape.ENOTFOUND, webscrape.ErrorCode(err))

		// Stale rows stay on disk until overwritten or cleared.
		assert.Equal(t, 1, countRows(t, db))
	})

	t.Run("rewriting a stale entry makes it fresh", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := setupTestCache(t, setupTestDB(t), sqlite.WithTTL(time.Minute), sqlite.WithClock(clock.Now))

		require.NoError(t, c.Set(ctx, "k", "old"))
		require.NoError(t, c.Flush(ctx))
		clock.Advance(time.Hour)

		require.NoError(t, c.Set(ctx, "k", "new"))
		require.NoError(t, c.Flush(ctx))

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "new", got)
	})

	t.Run("entry exposes timestamps", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := &fakeClock{now: start}
		c := setupTestCache(t, setupTestDB(t), sqlite.WithClock(clock.Now))

		require.NoError(t, c.Set(ctx, "k", "v1"))
		require.NoError(t, c.Flush(ctx))
		clock.Advance(time.Minute)
		require.NoError(t, c.Set(ctx, "k", "v2"))
		require.NoError(t, c.Flush(ctx))

		entry, err := c.Entry(ctx, "k")
		require.NoError(t, err)
		assert.True(t, entry.CreatedAt.Equal(start))
		assert.True(t, entry.UpdatedAt.Equal(start.Add(time.Minute)))
	})
}

func TestCache_Meta(t *testing.T) {
	t.Parallel()

	t.Run("stores metadata alongside value", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := setupTestCache(t, setupTestDB(t))

		require.NoError(t, c.Set(ctx, "k", "v"))
		require.NoError(t, c.SetMeta(ctx, "k", map[string]string{webscrape.MetaFinalURL: "http://example.com/final"}))
		require.NoError(t, c.Flush(ctx))

		meta, err := c.GetMeta(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "http://example.com/final", meta[webscrape.MetaFinalURL])

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("metadata-only key has no value", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := setupTestCache(t, setupTestDB(t))

		require.NoError(t, c.SetMeta(ctx, "k", map[string]string{"a": "b"}))
		require.NoError(t, c.Flush(ctx))

		assert.False(t, c.Contains(ctx, "k"))
		meta, err := c.GetMeta(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "b", meta["a"])
	})

	t.Run("setting value keeps existing metadata", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := setupTestCache(t, setupTestDB(t))

		require.NoError(t, c.SetMeta(ctx, "k", map[string]string{"a": "b"}))
		require.NoError(t, c.Flush(ctx))
		require.NoError(t, c.Set(ctx, "k", "v"))
		require.NoError(t, c.Flush(ctx))

		meta, err := c.GetMeta(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "b", meta["a"])
	})

	t.Run("missing key returns ENOTFOUND", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t, setupTestDB(t))

		_, err := c.GetMeta(context.Background(), "missing")
		assert.Equal(t, webscrape.ENOTFOUND, webscrape.ErrorCode(err))
	})
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)
	c := setupTestCache(t, db)

	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, c.Flush(ctx))
	require.NoError(t, c.Set(ctx, "b", "2"))

	require.NoError(t, c.Clear(ctx))

	assert.False(t, c.Contains(ctx, "a"))
	assert.False(t, c.Contains(ctx, "b"))
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 0, countRows(t, db))
}

func TestCache_Delete(t *testing.T) {
	t.Parallel()

	t.Run("removes stored key", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := setupTestCache(t, setupTestDB(t))

		require.NoError(t, c.Set(ctx, "a", "1"))
		require.NoError(t, c.Flush(ctx))
		require.NoError(t, c.Delete(ctx, "a"))
		assert.False(t, c.Contains(ctx, "a"))
	})

	t.Run("removes buffered key", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := setupTestDB(t)
		c := setupTestCache(t, db)

		require.NoError(t, c.Set(ctx, "a", "1"))
		require.NoError(t, c.Delete(ctx, "a"))
		require.NoError(t, c.Flush(ctx))
		assert.Equal(t, 0, countRows(t, db))
	})

	t.Run("returns ENOTFOUND for missing key", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t, setupTestDB(t))

		err := c.Delete(context.Background(), "missing")
		assert.Equal(t, webscrape.ENOTFOUND, webscrape.ErrorCode(err))
	})
}

func TestCache_Keys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := setupTestCache(t, setupTestDB(t))

	require.NoError(t, c.Set(ctx, "b", "2"))
	require.NoError(t, c.Set(ctx, "a", "1"))

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestCache_Open(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := t.TempDir() + "/cache.db"

	db := sqlite.NewDB(dbPath)
	require.NoError(t, db.Open())
	c := setupTestCache(t, db)
	require.NoError(t, c.Set(ctx, "persisted", "yes"))
	require.NoError(t, c.Close())
	require.NoError(t, db.Close())

	db = sqlite.NewDB(dbPath)
	require.NoError(t, db.Open())
	defer db.Close()
	c = setupTestCache(t, db)

	got, err := c.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "yes", got)
}

func TestCache_Merge(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (dst, src *sqlite.Cache) {
		t.Helper()

		ctx := context.Background()
		dst = setupTestCache(t, setupTestDB(t))
		src = setupTestCache(t, setupTestDB(t))

		require.NoError(t, dst.Set(ctx, "shared", "dst"))
		require.NoError(t, dst.Set(ctx, "dst-only", "d"))
		require.NoError(t, src.Set(ctx, "shared", "src"))
		require.NoError(t, src.Set(ctx, "src-only", "s"))
		return dst, src
	}

	t.Run("keeps existing keys without override", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		dst, src := setup(t)

		require.NoError(t, dst.Merge(ctx, src, false))

		got, err := dst.Get(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, "dst", got)

		got, err = dst.Get(ctx, "src-only")
		require.NoError(t, err)
		assert.Equal(t, "s", got)
	})

	t.Run("replaces existing keys with override", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		dst, src := setup(t)

		require.NoError(t, dst.Merge(ctx, src, true))

		got, err := dst.Get(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, "src", got)

		got, err = dst.Get(ctx, "dst-only")
		require.NoError(t, err)
		assert.Equal(t, "d", got)
	})
}

func BenchmarkCache_Set(b *testing.B) {
	ctx := context.Background()
	db := sqlite.NewDB(b.TempDir() + "/bench.db")
	require.NoError(b, db.Open())
	defer db.Close()

	c := sqlite.NewCache(db)
	require.NoError(b, c.Open(ctx))
	value := strings.Repeat("<div>content</div>", 500)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Set(ctx, fmt.Sprintf("http://example.com/%d", i), value); err != nil {
			b.Fatal(err)
		}
	}
	if err := c.Flush(ctx); err != nil {
		b.Fatal(err)
	}
}
