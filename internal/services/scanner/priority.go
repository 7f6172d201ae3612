// Package scanner implements the refresh scheduler: priority scoring, batch
// building, provider fallback fetching, and sequential batch execution under
// a single-cycle guard.
package scanner

import (
	"fmt"
	"math"
	"time"

	"github.com/jmaxwell/limitwatch/internal/models"
)

// Priority buckets for the conservative single-item auto scan.
// 0 is most urgent, bucketLeast is least urgent.
const (
	bucketBuySignal    = 0
	bucketNeverScanned = 0
	bucketVeryClose    = 1
	bucketClose        = 2
	bucketNear         = 3
	bucketWatch        = 4
	bucketFar          = 5
	bucketNoLimit      = 6
)

// recencyCapHours caps the recency contribution so one forgotten instrument
// cannot dominate the score forever.
const recencyCapHours = 168

// Scorer ranks candidate instruments by urgency. All outputs are
// deterministic for the same inputs and clock reading.
type Scorer struct {
	weights models.ScanPriorityWeights
	now     func() time.Time
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights models.ScanPriorityWeights) *Scorer {
	return &Scorer{weights: weights, now: time.Now}
}

// Bucket places an instrument in a discrete urgency bucket (0 most urgent,
// 6 least). An instrument with no buy limit needs user configuration, not
// data, and lands in the lowest-urgency bucket.
func (s *Scorer) Bucket(inst *models.TrackedInstrument) int {
	if inst.CurrentPrice <= 0 {
		return bucketNeverScanned
	}
	dist, ok := inst.DistanceToLimit()
	if !ok {
		return bucketNoLimit
	}
	switch {
	case dist <= 0:
		return bucketBuySignal
	case dist <= 2:
		return bucketVeryClose
	case dist <= 5:
		return bucketClose
	case dist <= 10:
		return bucketNear
	case dist <= 25:
		return bucketWatch
	default:
		return bucketFar
	}
}

// Score computes the continuous weighted urgency score used for bulk
// ordering, along with human-readable reasons for the scan log.
func (s *Scorer) Score(inst *models.TrackedInstrument) (float64, []string) {
	var score float64
	var reasons []string

	// Time since last successful scan: older means more urgent.
	hours := float64(recencyCapHours)
	if !inst.LastScan.At.IsZero() && inst.LastScan.State.IsSuccess() {
		hours = s.now().Sub(inst.LastScan.At).Hours()
		if hours > recencyCapHours {
			hours = recencyCapHours
		}
		if hours < 0 {
			hours = 0
		}
	} else {
		reasons = append(reasons, "never scanned")
	}
	score += hours * s.weights.LastScanRecency

	// Distance to limit: at or below zero is the strongest signal, and
	// urgency rises as the distance approaches zero from above.
	if dist, ok := inst.DistanceToLimit(); ok {
		urgency := 100 - dist
		if dist <= 0 {
			urgency = 200
			reasons = append(reasons, "buy signal")
		} else if dist <= 5 {
			reasons = append(reasons, fmt.Sprintf("%.1f%% from limit", dist))
		}
		if urgency < 0 {
			urgency = 0
		}
		score += urgency * s.weights.DistanceToLimit
	}

	// Volatility: larger absolute day change means more urgent.
	volatility := math.Abs(inst.DayChangePct)
	if volatility >= 5 {
		reasons = append(reasons, fmt.Sprintf("moved %.1f%% today", inst.DayChangePct))
	}
	score += volatility * s.weights.Volatility

	// Rainbow fill: how much of the doubling threshold ladder is crossed.
	fill := inst.RainbowFill()
	if fill == models.RainbowSteps {
		reasons = append(reasons, "rainbow full")
	}
	score += float64(fill) * s.weights.RainbowFill

	return score, reasons
}
