package main_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fwojciec/webscrape"
	main "github.com/fwojciec/webscrape/cmd/webscrape"
	"github.com/fwojciec/webscrape/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSite serves linked pages, a robots.txt and a sitemap, recording the
// paths requested.
type testSite struct {
	*httptest.Server

	mu    sync.Mutex
	paths []string
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	s := &testSite{}
	pages := map[string]string{
		"/":          `<h1>Home</h1><a href="/a">a</a><a href="/private/x">x</a>`,
		"/a":         `<h1>A</h1><a href="/b">b</a>`,
		"/b":         `<h1>B</h1>`,
		"/private/x": `<h1>Private</h1>`,
		"/listed":    `<h1>Listed</h1>`,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()

		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>%s/listed</loc></url></urlset>`, s.URL)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html><body>" + body + "</body></html>"))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testSite) requested(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.paths {
		if p == path {
			return true
		}
	}
	return false
}

func TestCrawlCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("follows links up to max depth", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, stdout, _ := newTestDeps(t)
		cmd := &main.CrawlCmd{Seeds: []string{site.URL + "/"}, MaxDepth: 1, Workers: 2, FetchFlags: testFetchFlags()}

		require.NoError(t, cmd.Run(deps))

		assert.True(t, site.requested("/a"))
		assert.True(t, site.requested("/private/x"))
		assert.False(t, site.requested("/b"), "depth 2 is beyond max depth")
		assert.Contains(t, stdout.String(), "Crawled 3 pages: 3 downloaded, 0 cached, 0 failed")
	})

	t.Run("respects robots.txt", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, _, _ := newTestDeps(t)
		cmd := &main.CrawlCmd{Seeds: []string{site.URL + "/"}, MaxDepth: -1, Robots: true, FetchFlags: testFetchFlags()}

		require.NoError(t, cmd.Run(deps))

		assert.True(t, site.requested("/b"))
		assert.False(t, site.requested("/private/x"))
	})

	t.Run("bans links", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, _, _ := newTestDeps(t)
		cmd := &main.CrawlCmd{Seeds: []string{site.URL + "/"}, MaxDepth: -1, Ban: "/private/", FetchFlags: testFetchFlags()}

		require.NoError(t, cmd.Run(deps))

		assert.True(t, site.requested("/b"))
		assert.False(t, site.requested("/private/x"))
	})

	t.Run("invalid allow pattern", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, _, stderr := newTestDeps(t)
		cmd := &main.CrawlCmd{Seeds: []string{site.URL + "/"}, Allow: "[", FetchFlags: testFetchFlags()}

		err := cmd.Run(deps)

		assert.Equal(t, webscrape.EINVALID, webscrape.ErrorCode(err))
		assert.Contains(t, stderr.String(), "--allow")
	})

	t.Run("collects selected text", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, stdout, _ := newTestDeps(t)
		cmd := &main.CrawlCmd{
			Seeds:      []string{site.URL + "/"},
			MaxDepth:   -1,
			Select:     "h1",
			Ban:        "/private/",
			Workers:    1,
			FetchFlags: testFetchFlags(),
		}

		require.NoError(t, cmd.Run(deps))

		out := stdout.String()
		assert.Contains(t, out, site.URL+"/\tHome")
		assert.Contains(t, out, site.URL+"/a\tA")
		assert.Contains(t, out, site.URL+"/b\tB")
	})

	t.Run("stops at max results", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, stdout, _ := newTestDeps(t)
		cmd := &main.CrawlCmd{
			Seeds:      []string{site.URL + "/"},
			MaxDepth:   -1,
			MaxResults: 1,
			Select:     "h1",
			Workers:    1,
			FetchFlags: testFetchFlags(),
		}

		require.NoError(t, cmd.Run(deps))

		assert.Equal(t, 1, strings.Count(stdout.String(), "\t"))
	})

	t.Run("seeds from sitemap", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, _, _ := newTestDeps(t)
		cmd := &main.CrawlCmd{Seeds: []string{site.URL + "/"}, Sitemap: true, FetchFlags: testFetchFlags()}

		require.NoError(t, cmd.Run(deps))

		assert.True(t, site.requested("/sitemap.xml"))
		assert.True(t, site.requested("/listed"))
	})

	t.Run("saves pages and state", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, _, _ := newTestDeps(t)
		dir := t.TempDir()
		state := fs.NewStateFile(filepath.Join(dir, "state.json"))
		deps.State = state
		cmd := &main.CrawlCmd{
			Seeds:      []string{site.URL + "/"},
			MaxDepth:   1,
			Ban:        "/private/",
			Out:        filepath.Join(dir, "pages"),
			FetchFlags: testFetchFlags(),
		}

		require.NoError(t, cmd.Run(deps))

		rel, err := fs.URLToPath(site.URL + "/a")
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "pages", rel))
		require.NoError(t, err)
		assert.Contains(t, string(data), "<h1>A</h1>")

		stats, err := state.Load(deps.Ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.NumDownloads)
		assert.Zero(t, stats.NumErrors)
	})

	t.Run("reports failed pages", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		deps, stdout, stderr := newTestDeps(t)
		cmd := &main.CrawlCmd{Seeds: []string{site.URL + "/gone"}, SeedRoot: false, FetchFlags: testFetchFlags()}

		require.NoError(t, cmd.Run(deps))

		assert.Contains(t, stderr.String(), "failed: "+site.URL+"/gone")
		assert.Contains(t, stdout.String(), "1 failed")
	})
}
