package main

import (
	"context"
	"fmt"

	"github.com/fwojciec/webscrape"
	"github.com/fwojciec/webscrape/sqlite"
)

// Run executes the cache keys command.
func (c *CacheKeysCmd) Run(deps *Dependencies) error {
	re, err := compile("match", c.Match)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}

	keys, err := deps.Store.Keys(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	for _, key := range keys {
		if re == nil || re.MatchString(key) {
			fmt.Fprintln(deps.Stdout, key)
		}
	}
	return nil
}

// Run executes the cache show command.
func (c *CacheShowCmd) Run(deps *Dependencies) error {
	entry, err := deps.Store.Entry(deps.Ctx, c.Key)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	for name, value := range entry.Meta {
		fmt.Fprintf(deps.Stderr, "%s: %s\n", name, value)
	}
	fmt.Fprintln(deps.Stdout, entry.Value)
	return nil
}

// Run executes the cache delete command.
func (c *CacheDeleteCmd) Run(deps *Dependencies) error {
	for _, key := range c.Keys {
		if err := deps.Store.Delete(deps.Ctx, key); err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
			return err
		}
		fmt.Fprintf(deps.Stdout, "Deleted %s\n", key)
	}
	return nil
}

// Run executes the cache clear command.
func (c *CacheClearCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: use --force to confirm deletion\n")
		return webscrape.Errorf(webscrape.EINVALID, "use --force to confirm deletion")
	}
	if err := deps.Cache.Clear(deps.Ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	if err := deps.Store.Compact(deps.Ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	fmt.Fprintln(deps.Stdout, "Cleared cache")
	return nil
}

// Run executes the cache merge command.
func (c *CacheMergeCmd) Run(deps *Dependencies) error {
	db, other, err := openCache(deps.Ctx, c.Path)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	defer db.Close()

	if err := deps.Store.Merge(deps.Ctx, other, c.Override); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Merged %s\n", c.Path)
	return nil
}

// openCache opens the SQLite database at path and loads its cache.
func openCache(ctx context.Context, path string) (*sqlite.DB, *sqlite.Cache, error) {
	db := sqlite.NewDB(path)
	if err := db.Open(); err != nil {
		return nil, nil, fmt.Errorf("failed to open cache at %q: %w", path, err)
	}
	cache := sqlite.NewCache(db)
	if err := cache.Open(ctx); err != nil {
		db.Close()
		return nil, nil, webscrape.Errorf(webscrape.EINTERNAL, "failed to load cache at %q: %v", path, err)
	}
	return db, cache, nil
}
