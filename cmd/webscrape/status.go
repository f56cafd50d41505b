package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/webscrape"
)

// Run executes the status command.
func (c *StatusCmd) Run(deps *Dependencies) error {
	stats, err := deps.State.Load(deps.Ctx)
	if webscrape.ErrorCode(err) == webscrape.ENOTFOUND {
		fmt.Fprintln(deps.Stdout, "No crawl state found. Run 'webscrape crawl' first.")
		return nil
	}
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", webscrape.ErrorMessage(err))
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	duration := time.Duration(stats.DurationSecs * float64(time.Second)).Round(time.Second)
	fmt.Fprintf(deps.Stdout, "Downloads: %d\n", stats.NumDownloads)
	fmt.Fprintf(deps.Stdout, "Cached:    %d\n", stats.NumCaches)
	fmt.Fprintf(deps.Stdout, "Errors:    %d\n", stats.NumErrors)
	fmt.Fprintf(deps.Stdout, "Queued:    %d\n", stats.QueueSize)
	fmt.Fprintf(deps.Stdout, "Duration:  %s\n", duration)
	return nil
}
