// Package interfaces defines service contracts for limitwatch
package interfaces

import (
	"context"
	"errors"

	"github.com/jmaxwell/limitwatch/internal/models"
)

// ErrCycleInFlight is returned when a scan trigger arrives while a cycle is
// already running. Triggers coalesce instead of queueing.
var ErrCycleInFlight = errors.New("scan cycle already in flight")

// MarketHours reports whether an exchange is currently in a trading session.
type MarketHours interface {
	IsMarketOpen(exchange string) bool
}

// RateLimiter is the per-provider quota accountant. It is the single source
// of truth for "may I call provider P now".
type RateLimiter interface {
	// RecordCall increments both windows for a provider. Called after every
	// actual network attempt, success or failure, never speculatively.
	RecordCall(ctx context.Context, provider string) error

	// AvailableRequests returns min(minute remaining, day remaining),
	// clamped to zero.
	AvailableRequests(ctx context.Context, provider string) int

	// UsageStats exposes used/limit/reset-in for both windows.
	UsageStats(ctx context.Context, provider string) models.ProviderUsageStats
}

// FetchOptions tunes one fallback fetch.
type FetchOptions struct {
	NeedsHistorical bool
	SkipProviders   []string
	// ForceProvider restricts the fetch to exactly one provider: no
	// fallback, no quota spent on others.
	ForceProvider string
}

// FallbackFetcher fetches one instrument's data, trying providers in
// priority order until one returns a validated price.
type FallbackFetcher interface {
	Fetch(ctx context.Context, ticker, exchange string, opts FetchOptions) *models.FetchResult
}

// Scanner owns the refresh cycle: it is the only component that mutates
// instrument and scan-log state, and at most one cycle runs at a time.
type Scanner interface {
	// RunBatch builds and executes a full quota-capped batch. Returns
	// ErrCycleInFlight when a cycle is already running.
	RunBatch(ctx context.Context, trigger models.TriggerType) (*models.CycleResult, error)

	// RunSingle refreshes one instrument, optionally through a forced
	// provider. Returns ErrCycleInFlight when a cycle is already running.
	RunSingle(ctx context.Context, instrumentID, forceProvider string, trigger models.TriggerType) (*models.CycleResult, error)

	// RunAuto refreshes only the single highest-priority candidate whose
	// market is currently open. A no-op (zero requested) when no market
	// is open.
	RunAuto(ctx context.Context) (*models.CycleResult, error)

	// Progress returns a snapshot of the in-flight cycle for polling UIs.
	Progress() models.ScanProgress
}

// Notifier evaluates notification rules after a successful scan and emits
// de-duplicated notification events.
type Notifier interface {
	Evaluate(ctx context.Context, inst *models.TrackedInstrument, previousPrice float64) []models.Notification
}

// Watchlist manages the tracked instrument set and the persisted manual
// scan order.
type Watchlist interface {
	List(ctx context.Context) ([]*models.TrackedInstrument, error)
	Get(ctx context.Context, id string) (*models.TrackedInstrument, error)
	Add(ctx context.Context, inst *models.TrackedInstrument) error
	Update(ctx context.Context, inst *models.TrackedInstrument) error
	Archive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	ManualOrder(ctx context.Context) (map[string]int, error)
	SetManualOrder(ctx context.Context, order map[string]int) error

	Search(ctx context.Context, query string) ([]models.SymbolMatch, error)
}
