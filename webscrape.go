// Package webscrape provides a polite, cache-backed crawl and download engine.
// It fetches URLs through rotating, health-tracked proxies, throttles request
// rate per domain, persists responses in a local cache, and schedules a
// deduplicated frontier of discovered URLs across concurrent workers.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, goquery/, robotstxt/).
package webscrape
