package main_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/webscrape"
	main "github.com/fwojciec/webscrape/cmd/webscrape"
	"github.com/fwojciec/webscrape/fs"
	wshttp "github.com/fwojciec/webscrape/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFetchFlags returns flags that download without delays or retries.
func testFetchFlags() main.FetchFlags {
	return main.FetchFlags{Timeout: 5 * time.Second}
}

// newTestDeps returns Dependencies downloading over HTTP without a cache.
func newTestDeps(t *testing.T) (*main.Dependencies, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	transport := wshttp.NewTransport()
	t.Cleanup(func() { _ = transport.Close() })

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &main.Dependencies{
		Ctx:       context.Background(),
		Stdout:    stdout,
		Stderr:    stderr,
		Transport: transport,
	}, stdout, stderr
}

func TestGetCmd_Run(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/agent":
			_, _ = w.Write([]byte("agent=" + r.UserAgent()))
		case "/form":
			_ = r.ParseForm()
			_, _ = w.Write([]byte("q=" + r.PostForm.Get("q")))
		default:
			_, _ = w.Write([]byte("<html><body>page " + r.URL.Path + "</body></html>"))
		}
	}))
	t.Cleanup(srv.Close)

	t.Run("prints content", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/one"}, FetchFlags: testFetchFlags()}

		require.NoError(t, cmd.Run(deps))
		assert.Contains(t, stdout.String(), "page /one")
	})

	t.Run("prints several URLs in order", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		cmd := &main.GetCmd{
			URLs:       []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"},
			FetchFlags: testFetchFlags(),
		}

		require.NoError(t, cmd.Run(deps))
		out := stdout.String()
		a := strings.Index(out, "page /a")
		b := strings.Index(out, "page /b")
		c := strings.Index(out, "page /c")
		require.True(t, a >= 0 && b >= 0 && c >= 0, out)
		assert.Less(t, a, b)
		assert.Less(t, b, c)
	})

	t.Run("reports client errors", func(t *testing.T) {
		t.Parallel()

		deps, stdout, stderr := newTestDeps(t)
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/missing"}, FetchFlags: testFetchFlags()}

		err := cmd.Run(deps)

		assert.Equal(t, webscrape.ECLIENT, webscrape.ErrorCode(err))
		assert.Contains(t, stderr.String(), "error:")
		assert.Empty(t, stdout.String())
	})

	t.Run("prints default on failure", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		flags := testFetchFlags()
		flags.Default = "fallback"
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/missing"}, FetchFlags: flags}

		require.NoError(t, cmd.Run(deps))
		assert.Equal(t, "fallback\n", stdout.String())
	})

	t.Run("sends user agent", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		flags := testFetchFlags()
		flags.UserAgent = []string{"test-agent/1.0"}
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/agent"}, FetchFlags: flags}

		require.NoError(t, cmd.Run(deps))
		assert.Contains(t, stdout.String(), "agent=test-agent/1.0")
	})

	t.Run("posts form data", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		flags := testFetchFlags()
		flags.Data = "q=search"
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/form"}, FetchFlags: flags}

		require.NoError(t, cmd.Run(deps))
		assert.Contains(t, stdout.String(), "q=search")
	})

	t.Run("rejects content not matching pattern", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := newTestDeps(t)
		flags := testFetchFlags()
		flags.Pattern = "never-present"
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/one"}, FetchFlags: flags}

		err := cmd.Run(deps)

		assert.Equal(t, webscrape.EMISMATCH, webscrape.ErrorCode(err))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := newTestDeps(t)
		flags := testFetchFlags()
		flags.Pattern = "("
		cmd := &main.GetCmd{URLs: []string{srv.URL}, FetchFlags: flags}

		err := cmd.Run(deps)

		assert.Equal(t, webscrape.EINVALID, webscrape.ErrorCode(err))
		assert.Contains(t, stderr.String(), "invalid pattern")
	})

	t.Run("saves pages to directory", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		dir := t.TempDir()
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/docs/intro"}, Out: dir, FetchFlags: testFetchFlags()}

		require.NoError(t, cmd.Run(deps))
		assert.Contains(t, stdout.String(), "Saved")

		rel, err := fs.URLToPath(srv.URL + "/docs/intro")
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, rel))
		require.NoError(t, err)
		assert.Contains(t, string(data), "page /docs/intro")
	})

	t.Run("rate limits requests to a domain", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newTestDeps(t)
		flags := testFetchFlags()
		flags.Rate = 10
		cmd := &main.GetCmd{URLs: []string{srv.URL + "/r1", srv.URL + "/r2", srv.URL + "/r3"}, FetchFlags: flags}

		start := time.Now()
		require.NoError(t, cmd.Run(deps))

		assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
		assert.Contains(t, stdout.String(), "page /r3")
	})

	t.Run("negative rate", func(t *testing.T) {
		t.Parallel()

		deps, _, stderr := newTestDeps(t)
		flags := testFetchFlags()
		flags.Rate = -1
		cmd := &main.GetCmd{URLs: []string{srv.URL}, FetchFlags: flags}

		err := cmd.Run(deps)

		assert.Equal(t, webscrape.EINVALID, webscrape.ErrorCode(err))
		assert.Contains(t, stderr.String(), "invalid rate")
	})

	t.Run("proxy file that does not exist", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := newTestDeps(t)
		flags := testFetchFlags()
		flags.ProxyFile = filepath.Join(t.TempDir(), "proxies.txt")
		cmd := &main.GetCmd{URLs: []string{srv.URL}, FetchFlags: flags}

		err := cmd.Run(deps)

		assert.Equal(t, webscrape.ENOTFOUND, webscrape.ErrorCode(err))
	})
}
