package fs

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/webscrape"
)

// Ensure ProxyFile implements webscrape.ProxySource at compile time.
var _ webscrape.ProxySource = (*ProxyFile)(nil)

// ProxyFile reads a proxy list with one proxy per line. Blank lines and
// lines starting with # are ignored. The file is read again only when its
// modification time changes.
type ProxyFile struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	loaded  bool
}

// NewProxyFile creates a ProxyFile for path.
func NewProxyFile(path string) *ProxyFile {
	return &ProxyFile{path: path}
}

// Proxies implements webscrape.ProxySource.
func (f *ProxyFile) Proxies(_ context.Context) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, webscrape.Errorf(webscrape.ENOTFOUND, "proxy file %s not found", f.path)
	}
	if err != nil {
		return nil, false, err
	}
	if f.loaded && info.ModTime().Equal(f.modTime) {
		return nil, false, nil
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	proxies, err := ParseProxies(file)
	if err != nil {
		return nil, false, err
	}
	f.modTime = info.ModTime()
	f.loaded = true
	return proxies, true, nil
}

// ParseProxies reads one proxy per line, skipping blank and # comment lines.
func ParseProxies(r io.Reader) ([]string, error) {
	var proxies []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return proxies, nil
}
