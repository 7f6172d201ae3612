// Package models defines data structures for limitwatch
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScanState is the terminal state of the most recent scan attempt for an
// instrument. Every scan attempt ends in exactly one of these.
type ScanState int

const (
	ScanStatePending ScanState = iota
	ScanStateSuccess
	ScanStateFallbackSuccess
	ScanStatePartial
	ScanStateFailed
	ScanStateUnavailable
)

var scanStateNames = map[ScanState]string{
	ScanStatePending:         "pending",
	ScanStateSuccess:         "success",
	ScanStateFallbackSuccess: "fallback_success",
	ScanStatePartial:         "partial",
	ScanStateFailed:          "failed",
	ScanStateUnavailable:     "unavailable",
}

func (s ScanState) String() string {
	if name, ok := scanStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsSuccess reports whether the state carries a usable price.
func (s ScanState) IsSuccess() bool {
	return s == ScanStateSuccess || s == ScanStateFallbackSuccess || s == ScanStatePartial
}

// MarshalJSON encodes the state as its string name.
func (s ScanState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state from its string name.
func (s *ScanState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range scanStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown scan state %q", name)
}

// ScanStatus records the outcome of the last scan attempt on an instrument.
type ScanStatus struct {
	State         ScanState `json:"state"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
	PreviousPrice float64   `json:"previous_price,omitempty"`
	NewPrice      float64   `json:"new_price,omitempty"`
	Provider      string    `json:"provider,omitempty"`
}

// Bar is one day of OHLC history.
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// TrackedInstrument is a user-watched equity with an optional buy limit.
// It is owned by the instrument store and mutated only by the scan executor
// and by direct user edits through the watchlist service.
type TrackedInstrument struct {
	ID             string    `json:"id" badgerhold:"key"`
	Ticker         string    `json:"ticker"`
	Exchange       string    `json:"exchange"`
	Currency       string    `json:"currency"`
	Tab            string    `json:"tab,omitempty"`
	CurrentPrice   float64   `json:"current_price"`
	PreviousClose  float64   `json:"previous_close"`
	DayChangePct   float64   `json:"day_change_pct"`
	Week52High     float64   `json:"week_52_high"`
	Week52Low      float64   `json:"week_52_low"`
	BuyLimit       *float64  `json:"buy_limit,omitempty"`
	History        []Bar     `json:"history,omitempty"`
	HistoryUpdated time.Time `json:"history_updated"`
	QuoteUpdated   time.Time `json:"quote_updated"`

	// Custom alert thresholds as distance-to-limit percentages (e.g. 5 means
	// "notify when price comes within 5% of the buy limit").
	AlertThresholds []float64 `json:"alert_thresholds,omitempty"`

	PreferredProvider string `json:"preferred_provider,omitempty"`

	// UnavailableProviders maps provider name to the time the provider was
	// marked unavailable for this ticker. An entry is removed the moment a
	// call to that provider succeeds again.
	UnavailableProviders map[string]time.Time `json:"unavailable_providers,omitempty"`
	UnavailableReason    string               `json:"unavailable_reason,omitempty"`

	LastScan      ScanStatus `json:"last_scan"`
	CustomChecked bool       `json:"custom_checked"`
	Archived      bool       `json:"archived"`

	AddedAt time.Time `json:"added_at"`
}

// rainbowLadder is the fixed doubling threshold ladder for the rainbow-fill
// priority signal: 1%, 2%, 4%, ... 2048%.
var rainbowLadder = [12]float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048}

// RainbowSteps is the length of the doubling threshold ladder.
const RainbowSteps = len(rainbowLadder)

// DistanceToLimit returns the signed distance-to-limit percentage
// ((price - limit) / limit) * 100 and whether it is defined. It is undefined
// when no limit is configured, the limit is zero, or the price is not positive.
func (t *TrackedInstrument) DistanceToLimit() (float64, bool) {
	if t.BuyLimit == nil || *t.BuyLimit == 0 || t.CurrentPrice <= 0 {
		return 0, false
	}
	return (t.CurrentPrice - *t.BuyLimit) / *t.BuyLimit * 100, true
}

// RainbowFill counts how many steps of the doubling ladder the current
// distance-to-limit has crossed. A distance at or below a ladder step counts
// as crossed, so a reached limit fills the whole ladder.
func (t *TrackedInstrument) RainbowFill() int {
	dist, ok := t.DistanceToLimit()
	if !ok {
		return 0
	}
	filled := 0
	for _, threshold := range rainbowLadder {
		if dist <= threshold {
			filled++
		}
	}
	return filled
}

// MarkUnavailable records a provider as unavailable for this ticker.
func (t *TrackedInstrument) MarkUnavailable(provider string, at time.Time) {
	if t.UnavailableProviders == nil {
		t.UnavailableProviders = make(map[string]time.Time)
	}
	t.UnavailableProviders[provider] = at
}

// ClearUnavailable removes all unavailability markers.
func (t *TrackedInstrument) ClearUnavailable() {
	t.UnavailableProviders = nil
	t.UnavailableReason = ""
}

// SymbolMatch is one result row from a provider symbol search.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
}
