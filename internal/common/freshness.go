// Package common provides shared utilities for limitwatch
package common

import "time"

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}

// IsQuoteStale decides whether a cached quote needs a new network call.
// While the market is open quotes go stale on a short TTL; while it is closed
// the price cannot move, so the cache holds for a much longer window. A quote
// with a non-positive price has never been successfully scanned and is always
// stale.
func IsQuoteStale(currentPrice float64, fetchedAt time.Time, marketOpen bool, scan *ScanConfig) bool {
	if currentPrice <= 0 {
		return true
	}
	ttl := scan.GetQuoteTTLClosed()
	if marketOpen {
		ttl = scan.GetQuoteTTLOpen()
	}
	return !IsFresh(fetchedAt, ttl)
}

// IsHistoricalStale decides whether the historical series needs refreshing.
// Historical fetches are expensive: missing entirely or older than the
// historical TTL (default 24h) means stale.
func IsHistoricalStale(updated time.Time, scan *ScanConfig) bool {
	return !IsFresh(updated, scan.GetHistoricalTTL())
}
