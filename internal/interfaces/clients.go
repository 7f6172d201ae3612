// Package interfaces defines service contracts for limitwatch
package interfaces

import (
	"context"

	"github.com/jmaxwell/limitwatch/internal/models"
)

// ProviderClient is the call contract every upstream data provider implements.
// Implementations must return a typed error classifiable by the fallback
// client; they never retry internally beyond their own courtesy rate limiter.
type ProviderClient interface {
	// Name returns the provider identifier used in quotas, logs and
	// unavailability markers (e.g. "eodhd").
	Name() string

	// FetchQuote retrieves a live quote for one ticker.
	FetchQuote(ctx context.Context, ticker, exchange string) (*models.Quote, error)

	// FetchHistory retrieves the daily OHLC series for one ticker.
	FetchHistory(ctx context.Context, ticker, exchange string) ([]models.Bar, error)

	// SearchSymbols looks up instruments matching a free-text query.
	SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error)
}
