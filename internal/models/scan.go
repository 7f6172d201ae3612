package models

import "time"

// TriggerType identifies what started a scan cycle.
type TriggerType string

const (
	TriggerAuto   TriggerType = "auto"   // conservative single-item timer
	TriggerManual TriggerType = "manual" // user-initiated
	TriggerBatch  TriggerType = "batch"  // periodic full cycle
	TriggerSingle TriggerType = "single" // one-instrument refresh
)

// ScanLogCapacity bounds the scan log; oldest entries are evicted first.
const ScanLogCapacity = 500

// ScanLogEntry is one row of the append-only, capacity-bounded scan log.
type ScanLogEntry struct {
	ID             string      `json:"id" badgerhold:"key"`
	Seq            uint64      `json:"seq" badgerhold:"index"`
	Ticker         string      `json:"ticker"`
	InstrumentID   string      `json:"instrument_id"`
	Tab            string      `json:"tab,omitempty"`
	Trigger        TriggerType `json:"trigger"`
	Result         ScanState   `json:"result"`
	PreviousPrice  float64     `json:"previous_price,omitempty"`
	NewPrice       float64     `json:"new_price,omitempty"`
	PriceChangePct float64     `json:"price_change_pct,omitempty"`
	Provider       string      `json:"provider,omitempty"`
	DurationMS     int64       `json:"duration_ms"`
	Reasons        []string    `json:"reasons,omitempty"`
	Error          string      `json:"error,omitempty"`
	At             time.Time   `json:"at"`
}

// ScanQueueItem is a transient projection of one candidate in a refresh
// cycle, recomputed every cycle.
type ScanQueueItem struct {
	Instrument *TrackedInstrument `json:"instrument"`
	Score      float64            `json:"score"`
	Bucket     int                `json:"bucket"`
	Reasons    []string           `json:"reasons,omitempty"`

	// NeedsHistory is true when the historical series is stale and the item
	// costs two provider calls instead of one.
	NeedsHistory bool `json:"needs_history"`

	// ForceProvider restricts this item to one provider (single refresh
	// with an explicit provider choice).
	ForceProvider string `json:"force_provider,omitempty"`
}

// BatchMeta describes what BuildBatch kept and dropped.
type BatchMeta struct {
	TotalCandidates    int `json:"total_candidates"`
	SkippedFresh       int `json:"skipped_fresh"`
	SkippedUnavailable int `json:"skipped_unavailable"`
	Capped             int `json:"capped"`
}

// CycleResult summarizes one completed refresh cycle.
type CycleResult struct {
	Trigger    TriggerType `json:"trigger"`
	Started    time.Time   `json:"started"`
	DurationMS int64       `json:"duration_ms"`
	Requested  int         `json:"requested"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Meta       BatchMeta   `json:"meta"`
}

// ScanProgress is a point-in-time snapshot of a running cycle for polling UIs.
type ScanProgress struct {
	Running bool   `json:"running"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Ticker  string `json:"ticker,omitempty"`
}

// ScanPriorityWeights are the user-tunable multipliers for the weighted
// priority score, persisted with settings.
type ScanPriorityWeights struct {
	LastScanRecency      float64 `json:"last_scan_recency" toml:"last_scan_recency"`
	DistanceToLimit      float64 `json:"distance_to_limit" toml:"distance_to_limit"`
	Volatility           float64 `json:"volatility" toml:"volatility"`
	RainbowFill          float64 `json:"rainbow_fill" toml:"rainbow_fill"`
	SkipErrorInstruments bool    `json:"skip_error_instruments" toml:"skip_error_instruments"`
}

// DefaultPriorityWeights returns the stock weighting used when the user has
// not tuned anything.
func DefaultPriorityWeights() ScanPriorityWeights {
	return ScanPriorityWeights{
		LastScanRecency: 1.0,
		DistanceToLimit: 2.0,
		Volatility:      1.0,
		RainbowFill:     1.5,
	}
}
