package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/webscrape"
)

var _ webscrape.SitemapService = (*LoggingSitemapService)(nil)

// LoggingSitemapService logs every sitemap discovery. Failures are logged
// at warn level.
type LoggingSitemapService struct {
	next   webscrape.SitemapService
	logger *slog.Logger
}

// NewLoggingSitemapService wraps next.
func NewLoggingSitemapService(next webscrape.SitemapService, logger *slog.Logger) *LoggingSitemapService {
	return &LoggingSitemapService{next: next, logger: logger}
}

// DiscoverURLs implements webscrape.SitemapService.
func (s *LoggingSitemapService) DiscoverURLs(ctx context.Context, siteURL string, filter *webscrape.URLFilter) (urls []string, err error) {
	defer func(begin time.Time) {
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "sitemap",
			"site", siteURL,
			"urls", len(urls),
			"filtered", filter != nil,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.DiscoverURLs(ctx, siteURL, filter)
}
