package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/webscrape"
)

var (
	_ webscrape.Extractor     = (*LoggingExtractor)(nil)
	_ webscrape.ResultCounter = (*LoggingExtractor)(nil)
)

// LoggingExtractor wraps an Extractor with logging.
type LoggingExtractor struct {
	next   webscrape.Extractor
	logger *slog.Logger
}

// NewLoggingExtractor creates a new LoggingExtractor.
func NewLoggingExtractor(next webscrape.Extractor, logger *slog.Logger) *LoggingExtractor {
	return &LoggingExtractor{next: next, logger: logger}
}

// Extract delegates to the wrapped extractor and logs the number of links.
func (e *LoggingExtractor) Extract(ctx context.Context, content, url string) (links []string, err error) {
	defer func(begin time.Time) {
		e.logger.Info("extract",
			"url", url,
			"links", len(links),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Extract(ctx, content, url)
}

// Results reports the wrapped extractor's result count, or zero if it
// does not count results.
func (e *LoggingExtractor) Results() int {
	if c, ok := e.next.(webscrape.ResultCounter); ok {
		return c.Results()
	}
	return 0
}
