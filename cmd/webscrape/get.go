package main

import (
	"fmt"

	"github.com/fwojciec/webscrape"
	"github.com/fwojciec/webscrape/crawl"
	"github.com/fwojciec/webscrape/fs"
)

// Run executes the get command.
func (c *GetCmd) Run(deps *Dependencies) error {
	d, err := c.downloader(deps)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	defer func() { _ = flush(deps) }()

	if len(c.URLs) == 1 {
		res := d.Fetch(deps.Ctx, c.URLs[0])
		if !res.OK() && res.Err != nil && c.Default == "" {
			fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(res.Err))
			return res.Err
		}
		return c.emit(deps, c.URLs[0], res.Content)
	}

	contents, err := crawl.GetAll(deps.Ctx, d, c.URLs, d.Pool.Active())
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}
	for i, content := range contents {
		if err := c.emit(deps, c.URLs[i], content); err != nil {
			return err
		}
	}
	return nil
}

// emit prints content, or saves it when an output directory is set.
func (c *GetCmd) emit(deps *Dependencies, rawURL, content string) error {
	if c.Out == "" {
		fmt.Fprintln(deps.Stdout, content)
		return nil
	}
	if content == "" {
		fmt.Fprintf(deps.Stderr, "Skipped %s: no content\n", rawURL)
		return nil
	}
	if _, err := fs.NewPageWriter(c.Out, nil).Extract(deps.Ctx, content, rawURL); err != nil {
		fmt.Fprintf(deps.Stderr, "error: failed to save %s: %v\n", rawURL, err)
		return err
	}
	fmt.Fprintf(deps.Stdout, "Saved %s\n", rawURL)
	return nil
}

// flush writes buffered cache entries.
func flush(deps *Dependencies) error {
	if deps.Cache == nil {
		return nil
	}
	return deps.Cache.Flush(deps.Ctx)
}
