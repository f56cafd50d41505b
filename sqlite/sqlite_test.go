package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/webscrape/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_Open(t *testing.T) {
	t.Parallel()

	t.Run("creates the cache table", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB(sqlite.MemoryPath)
		require.NoError(t, db.Open())
		t.Cleanup(func() { _ = db.Close() })

		var count int
		err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM cache").Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("keeps rows across reopen", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "cache.db")

		db := sqlite.NewDB(path)
		require.NoError(t, db.Open())
		_, err := db.ExecContext(ctx,
			"INSERT INTO cache (key, value, created_at, updated_at) VALUES ('k', NULL, 'x', 'x')")
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db = sqlite.NewDB(path)
		require.NoError(t, db.Open())
		t.Cleanup(func() { _ = db.Close() })

		var count int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache").Scan(&count))
		assert.Equal(t, 1, count)
		assert.Equal(t, path, db.Path())
	})

	t.Run("fails in a missing directory", func(t *testing.T) {
		t.Parallel()

		db := sqlite.NewDB(filepath.Join(t.TempDir(), "missing", "cache.db"))

		require.Error(t, db.Open())
	})

	t.Run("applies pragmas", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := sqlite.NewDB(filepath.Join(t.TempDir(), "cache.db"), sqlite.WithBusyTimeout(250*time.Millisecond))
		require.NoError(t, db.Open())
		t.Cleanup(func() { _ = db.Close() })

		var journalMode string
		require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var timeout int
		require.NoError(t, db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 250, timeout)
	})
}

func TestDB_Vacuum(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := sqlite.NewDB(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	_, err := db.ExecContext(ctx,
		"INSERT INTO cache (key, value, created_at, updated_at) VALUES ('k', randomblob(100000), 'x', 'x')")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "DELETE FROM cache")
	require.NoError(t, err)

	require.NoError(t, db.Vacuum(ctx))

	var pages int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages))
	assert.Less(t, pages, 10)
}
