package main_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fwojciec/webscrape"
	main "github.com/fwojciec/webscrape/cmd/webscrape"
	"github.com/fwojciec/webscrape/fs"
	"github.com/fwojciec/webscrape/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_Run(t *testing.T) {
	t.Parallel()

	stats := webscrape.CrawlStats{NumDownloads: 12, NumErrors: 2, NumCaches: 5, QueueSize: 40, DurationSecs: 90}

	t.Run("prints saved counters", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		state := fs.NewStateFile(filepath.Join(t.TempDir(), "state.json"))
		require.NoError(t, state.Save(context.Background(), stats))
		deps.State = state

		require.NoError(t, (&main.StatusCmd{}).Run(deps))

		out := stdout.String()
		assert.Contains(t, out, "Downloads: 12")
		assert.Contains(t, out, "Cached:    5")
		assert.Contains(t, out, "Errors:    2")
		assert.Contains(t, out, "Queued:    40")
		assert.Contains(t, out, "Duration:  1m30s")
	})

	t.Run("prints JSON", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		deps.State = &mock.StateStore{
			LoadFn: func(_ context.Context) (webscrape.CrawlStats, error) {
				return stats, nil
			},
		}

		require.NoError(t, (&main.StatusCmd{JSON: true}).Run(deps))

		var got webscrape.CrawlStats
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
		assert.Equal(t, stats, got)
	})

	t.Run("no state yet", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		deps.State = fs.NewStateFile(filepath.Join(t.TempDir(), "state.json"))

		require.NoError(t, (&main.StatusCmd{}).Run(deps))
		assert.Contains(t, stdout.String(), "No crawl state found")
	})

	t.Run("corrupt state", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := newTestDeps(t)
		deps.State = &mock.StateStore{
			LoadFn: func(_ context.Context) (webscrape.CrawlStats, error) {
				return webscrape.CrawlStats{}, webscrape.Errorf(webscrape.EINVALID, "corrupt crawl state")
			},
		}

		err := (&main.StatusCmd{}).Run(deps)

		assert.Equal(t, webscrape.EINVALID, webscrape.ErrorCode(err))
		assert.Contains(t, stderr.String(), "corrupt crawl state")
	})
}
