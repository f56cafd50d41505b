package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fwojciec/webscrape"
)

// Ensure StateFile implements webscrape.StateStore at compile time.
var _ webscrape.StateStore = (*StateFile)(nil)

// StateFile stores crawl counters as JSON. Saves write a temporary file in
// the same directory and rename it over the target, so readers see either
// the old or the new state.
type StateFile struct {
	path string
}

// NewStateFile creates a StateFile at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the location of the state file.
func (f *StateFile) Path() string {
	return f.path
}

// Save implements webscrape.StateStore.
func (f *StateFile) Save(_ context.Context, stats webscrape.CrawlStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	// Rename does not replace an existing file on Windows.
	if runtime.GOOS == "windows" {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			os.Remove(tmpName)
			return err
		}
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Load implements webscrape.StateStore.
func (f *StateFile) Load(_ context.Context) (webscrape.CrawlStats, error) {
	var stats webscrape.CrawlStats

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return stats, webscrape.Errorf(webscrape.ENOTFOUND, "no crawl state at %s", f.path)
	}
	if err != nil {
		return stats, err
	}

	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, webscrape.Errorf(webscrape.EINVALID, "corrupt crawl state at %s: %v", f.path, err)
	}
	return stats, nil
}
