// Package slog provides logging decorators for the webscrape interfaces.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/webscrape"
)

// Ensure LoggingTransport implements webscrape.Transport.
var _ webscrape.Transport = (*LoggingTransport)(nil)

// LoggingTransport wraps a Transport with debug logging of every attempt.
type LoggingTransport struct {
	next   webscrape.Transport
	logger *slog.Logger
}

// NewLoggingTransport creates a new LoggingTransport.
func NewLoggingTransport(next webscrape.Transport, logger *slog.Logger) *LoggingTransport {
	return &LoggingTransport{next: next, logger: logger}
}

// Do delegates to the wrapped transport and logs the attempt.
func (t *LoggingTransport) Do(ctx context.Context, req *webscrape.Request) (resp *webscrape.Response, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"url", req.URL,
			"proxy", req.Proxy,
			"duration", time.Since(begin),
		}
		if resp != nil {
			attrs = append(attrs, "status", resp.StatusCode, "bytes", len(resp.Content))
		}
		attrs = append(attrs, "err", err)
		t.logger.Debug("fetch", attrs...)
	}(time.Now())
	return t.next.Do(ctx, req)
}
