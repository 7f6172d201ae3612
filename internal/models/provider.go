package models

import (
	"fmt"
	"time"
)

// FailureKind classifies a failed provider attempt.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNotFound
	FailureRateLimited
	FailureTimeout
	FailureNetwork
	FailureInvalidResponse
)

func (k FailureKind) String() string {
	switch k {
	case FailureNotFound:
		return "not_found"
	case FailureRateLimited:
		return "rate_limited"
	case FailureTimeout:
		return "timeout"
	case FailureNetwork:
		return "network"
	case FailureInvalidResponse:
		return "invalid_response"
	default:
		return "none"
	}
}

// ProviderQuota holds the configured call allowances for one provider.
type ProviderQuota struct {
	PerMinute int           `json:"per_minute"`
	PerDay    int           `json:"per_day"`
	MinDelay  time.Duration `json:"min_delay"`
}

// ProviderUsage holds the persisted call counters for one provider.
// Counters are incremented after every actual network attempt, never
// speculatively. The minute window is a fixed 60-second bucket; the day
// window resets at UTC midnight.
type ProviderUsage struct {
	Provider      string    `json:"provider" badgerhold:"key"`
	MinuteCount   int       `json:"minute_count"`
	MinuteResetAt time.Time `json:"minute_reset_at"`
	DayCount      int       `json:"day_count"`
	DayResetAt    time.Time `json:"day_reset_at"`
}

// ProviderUsageStats is the display/gating view of a provider's quota state.
type ProviderUsageStats struct {
	Provider      string        `json:"provider"`
	MinuteUsed    int           `json:"minute_used"`
	MinuteLimit   int           `json:"minute_limit"`
	MinuteResetIn time.Duration `json:"minute_reset_in"`
	DayUsed       int           `json:"day_used"`
	DayLimit      int           `json:"day_limit"`
	DayResetIn    time.Duration `json:"day_reset_in"`
	Available     int           `json:"available"`
}

// Quote is a normalized live quote from any provider.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	DayChangePct  float64   `json:"day_change_pct"`
	Week52High    float64   `json:"week_52_high"`
	Week52Low     float64   `json:"week_52_low"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
}

// ProviderError is a classified failure returned by provider clients so the
// fallback loop can decide how to proceed.
type ProviderError struct {
	Provider   string
	Kind       FailureKind
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

// AttemptFailure records one failed provider attempt during a fallback fetch.
type AttemptFailure struct {
	Provider string      `json:"provider"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
}

// FetchResult is the outcome of one fallback fetch for one instrument.
// Either Quote is set (optionally with History) or the fetch failed on all
// attempted providers and the unavailability fields describe why.
type FetchResult struct {
	Quote    *Quote `json:"quote,omitempty"`
	History  []Bar  `json:"history,omitempty"`
	Provider string `json:"provider,omitempty"`

	// Fallback is true when the winning provider was not the first one tried.
	Fallback bool `json:"fallback,omitempty"`

	Failures             []AttemptFailure `json:"failures,omitempty"`
	UnavailableProviders []string         `json:"unavailable_providers,omitempty"`
	UnavailableReason    string           `json:"unavailable_reason,omitempty"`
}

// Succeeded reports whether any provider returned a validated quote.
func (r *FetchResult) Succeeded() bool {
	return r.Quote != nil && r.Quote.Price > 0
}
