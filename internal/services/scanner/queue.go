package scanner

import (
	"sort"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// BatchCaps carries the quota numbers a batch must respect, read from the
// rate-limit tracker immediately before building.
type BatchCaps struct {
	// PerMinuteLimit is the primary provider's per-minute allowance.
	PerMinuteLimit int
	// AvailableQuota is the number of calls currently available.
	AvailableQuota int
}

// QueueManager builds the ordered, quota-capped batch for a refresh cycle.
type QueueManager struct {
	scorer    *Scorer
	hours     marketHours
	scan      *common.ScanConfig
	weights   models.ScanPriorityWeights
	providers []string // configured provider chain
	now       func() time.Time
}

// marketHours is the slice of the MarketHours interface the queue needs.
type marketHours interface {
	IsMarketOpen(exchange string) bool
}

// NewQueueManager creates a queue manager.
func NewQueueManager(scorer *Scorer, hours marketHours, scan *common.ScanConfig, weights models.ScanPriorityWeights, providers []string) *QueueManager {
	return &QueueManager{
		scorer:    scorer,
		hours:     hours,
		scan:      scan,
		weights:   weights,
		providers: providers,
		now:       time.Now,
	}
}

// unavailableEverywhere reports whether every configured provider is marked
// unavailable for this instrument and all markers are inside the cool-down.
// Once any marker's cool-down elapses the instrument is re-probed.
func (q *QueueManager) unavailableEverywhere(inst *models.TrackedInstrument) bool {
	if len(q.providers) == 0 || len(inst.UnavailableProviders) == 0 {
		return false
	}
	ttl := q.scan.GetUnavailableTTL()
	now := q.now()
	for _, provider := range q.providers {
		markedAt, marked := inst.UnavailableProviders[provider]
		if !marked {
			return false
		}
		if now.Sub(markedAt) >= ttl {
			return false
		}
	}
	return true
}

// BuildBatch computes priorities for all candidates, orders them (manual
// override wins over computed priority), drops unavailable and fresh
// instruments, and caps the result to what the quota allows. One call of
// headroom is reserved for other concurrent usage such as symbol search.
func (q *QueueManager) BuildBatch(candidates []*models.TrackedInstrument, manualOrder map[string]int, caps BatchCaps) ([]models.ScanQueueItem, models.BatchMeta) {
	meta := models.BatchMeta{TotalCandidates: len(candidates)}

	items := make([]models.ScanQueueItem, 0, len(candidates))
	for _, inst := range candidates {
		if inst.Archived {
			continue
		}
		if q.weights.SkipErrorInstruments &&
			(inst.LastScan.State == models.ScanStateFailed || inst.LastScan.State == models.ScanStateUnavailable) {
			meta.SkippedUnavailable++
			continue
		}
		if q.unavailableEverywhere(inst) {
			meta.SkippedUnavailable++
			continue
		}

		open := q.hours.IsMarketOpen(inst.Exchange)
		if !common.IsQuoteStale(inst.CurrentPrice, inst.QuoteUpdated, open, q.scan) {
			meta.SkippedFresh++
			continue
		}

		score, reasons := q.scorer.Score(inst)
		items = append(items, models.ScanQueueItem{
			Instrument:   inst,
			Score:        score,
			Bucket:       q.scorer.Bucket(inst),
			Reasons:      reasons,
			NeedsHistory: common.IsHistoricalStale(inst.HistoryUpdated, q.scan),
		})
	}

	if len(manualOrder) > 0 {
		// Manual override: stored position wins, unknown instruments last,
		// ties by ticker.
		sort.SliceStable(items, func(i, j int) bool {
			pi, iOK := manualOrder[items[i].Instrument.ID]
			pj, jOK := manualOrder[items[j].Instrument.ID]
			switch {
			case iOK && jOK && pi != pj:
				return pi < pj
			case iOK != jOK:
				return iOK
			default:
				return items[i].Instrument.Ticker < items[j].Instrument.Ticker
			}
		})
	} else {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Score != items[j].Score {
				return items[i].Score > items[j].Score
			}
			return items[i].Instrument.Ticker < items[j].Instrument.Ticker
		})
	}

	// Cap to quota, reserving one call of headroom, charging two calls for
	// items that also need history.
	maxItems := caps.PerMinuteLimit - 1
	if maxItems < 0 {
		maxItems = 0
	}
	capped := make([]models.ScanQueueItem, 0, len(items))
	callsUsed := 0
	for _, item := range items {
		if len(capped) >= maxItems {
			break
		}
		cost := 1
		if item.NeedsHistory {
			cost = 2
		}
		if callsUsed+cost > caps.AvailableQuota {
			break
		}
		callsUsed += cost
		capped = append(capped, item)
	}
	meta.Capped = len(items) - len(capped)

	return capped, meta
}
