package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// Executor drains a batch strictly sequentially, applying results to the
// instrument store, appending scan log entries, firing notifications, and
// rotating each processed instrument to the back of the manual order.
type Executor struct {
	fetcher        interfaces.FallbackFetcher
	storage        interfaces.StorageManager
	notifier       interfaces.Notifier
	watchlist      interfaces.Watchlist
	delays         map[string]time.Duration // per-provider minimum inter-call delay
	unavailableTTL time.Duration
	logger         *common.Logger
	now            func() time.Time

	// progress is invoked before each item so the service can expose a
	// polling snapshot. May be nil.
	progress func(current, total int, ticker string)
}

// NewExecutor creates a batch executor.
func NewExecutor(
	fetcher interfaces.FallbackFetcher,
	storage interfaces.StorageManager,
	notifier interfaces.Notifier,
	watchlist interfaces.Watchlist,
	delays map[string]time.Duration,
	unavailableTTL time.Duration,
	logger *common.Logger,
) *Executor {
	return &Executor{
		fetcher:        fetcher,
		storage:        storage,
		notifier:       notifier,
		watchlist:      watchlist,
		delays:         delays,
		unavailableTTL: unavailableTTL,
		logger:         logger,
		now:            time.Now,
	}
}

// SetProgressFunc registers the progress callback.
func (e *Executor) SetProgressFunc(fn func(current, total int, ticker string)) {
	e.progress = fn
}

// Execute runs the batch to completion. The batch was already capped against
// quota, so the loop never starts more calls than the quota allows; the only
// blocking point is the inter-call delay between items.
func (e *Executor) Execute(ctx context.Context, batch []models.ScanQueueItem, trigger models.TriggerType, meta models.BatchMeta) *models.CycleResult {
	started := e.now()
	result := &models.CycleResult{
		Trigger:   trigger,
		Started:   started,
		Requested: len(batch),
		Meta:      meta,
	}

	var lastProvider string
	for i, item := range batch {
		if i > 0 {
			e.waitMinDelay(ctx, lastProvider)
		}
		if e.progress != nil {
			e.progress(i+1, len(batch), item.Instrument.Ticker)
		}

		provider, ok := e.processItem(ctx, item, trigger)
		if ok {
			result.Succeeded++
		} else {
			result.Failed++
		}
		// Failed attempts hit the network too; the next item's delay keys
		// off whichever provider was actually called last. An item that
		// made no calls at all leaves the delay off.
		lastProvider = provider
	}

	result.DurationMS = e.now().Sub(started).Milliseconds()
	return result
}

// lastAttempted returns the provider of the last real call in a failed
// fetch. Quota-skipped providers never appear in UnavailableProviders, so
// an all-skipped fetch yields the empty string.
func lastAttempted(fetched *models.FetchResult) string {
	if n := len(fetched.UnavailableProviders); n > 0 {
		return fetched.UnavailableProviders[n-1]
	}
	return ""
}

// waitMinDelay sleeps for the previous provider's configured minimum delay.
// The wait is cooperative: context cancellation cuts it short.
func (e *Executor) waitMinDelay(ctx context.Context, provider string) {
	delay := e.delays[provider]
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// processItem runs one scan attempt to a terminal state. Returns the serving
// provider and whether the attempt succeeded. Panics inside the fetch path
// are treated identically to a total provider failure.
func (e *Executor) processItem(ctx context.Context, item models.ScanQueueItem, trigger models.TriggerType) (provider string, ok bool) {
	inst := item.Instrument
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("ticker", inst.Ticker).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Scan attempt panicked")
			e.applyFailure(ctx, item, trigger, &models.FetchResult{
				UnavailableReason: "internal error during scan",
			}, e.now().Sub(start))
			provider, ok = "", false
		}
	}()

	// Mark the instrument as currently scanning and persist it, so a
	// client polling the instrument mid-cycle sees the in-flight state
	// rather than the previous cycle's outcome.
	inst.LastScan = models.ScanStatus{State: models.ScanStatePending, At: start}
	if err := e.storage.Instruments().Save(ctx, inst); err != nil {
		e.logger.Warn().Str("ticker", inst.Ticker).Err(err).Msg("Failed to persist scanning state")
	}

	// Skip providers still inside their unavailability cool-down; expired
	// markers are left off the skip list so the provider gets re-probed.
	skip := make([]string, 0, len(inst.UnavailableProviders))
	for name, markedAt := range inst.UnavailableProviders {
		if e.unavailableTTL <= 0 || start.Sub(markedAt) < e.unavailableTTL {
			skip = append(skip, name)
		}
	}

	force := item.ForceProvider
	if force == "" {
		force = inst.PreferredProvider
	}
	fetched := e.fetcher.Fetch(ctx, inst.Ticker, inst.Exchange, interfaces.FetchOptions{
		NeedsHistorical: item.NeedsHistory,
		SkipProviders:   skip,
		ForceProvider:   force,
	})
	elapsed := e.now().Sub(start)

	if !fetched.Succeeded() {
		e.applyFailure(ctx, item, trigger, fetched, elapsed)
		return lastAttempted(fetched), false
	}

	e.applySuccess(ctx, item, trigger, fetched, elapsed)
	return fetched.Provider, true
}

// applySuccess writes the fetched data back to the instrument, logs the
// outcome, and evaluates notification rules.
func (e *Executor) applySuccess(ctx context.Context, item models.ScanQueueItem, trigger models.TriggerType, fetched *models.FetchResult, elapsed time.Duration) {
	inst := item.Instrument
	previousPrice := inst.CurrentPrice
	quote := fetched.Quote

	inst.CurrentPrice = quote.Price
	if quote.PreviousClose > 0 {
		inst.PreviousClose = quote.PreviousClose
	}
	inst.DayChangePct = quote.DayChangePct
	if quote.Currency != "" {
		inst.Currency = quote.Currency
	}
	if quote.Week52High > 0 {
		inst.Week52High = quote.Week52High
	}
	if quote.Week52Low > 0 {
		inst.Week52Low = quote.Week52Low
	}
	inst.QuoteUpdated = e.now()

	if len(fetched.History) > 0 {
		inst.History = fetched.History
		inst.HistoryUpdated = e.now()
	}

	// A successful call clears that provider's marker; providers that
	// failed on the way to the winner are marked unavailable.
	state := models.ScanStateSuccess
	if fetched.Fallback {
		state = models.ScanStateFallbackSuccess
	}
	if item.NeedsHistory && len(fetched.History) == 0 {
		state = models.ScanStatePartial
	}
	if inst.UnavailableProviders != nil {
		delete(inst.UnavailableProviders, fetched.Provider)
	}
	for _, name := range fetched.UnavailableProviders {
		if name != fetched.Provider {
			inst.MarkUnavailable(name, e.now())
		}
	}
	inst.UnavailableReason = ""

	priceChangePct := 0.0
	if previousPrice > 0 {
		priceChangePct = (quote.Price - previousPrice) / previousPrice * 100
	}

	inst.LastScan = models.ScanStatus{
		State:         state,
		At:            e.now(),
		PreviousPrice: previousPrice,
		NewPrice:      quote.Price,
		Provider:      fetched.Provider,
	}

	if err := e.storage.Instruments().Save(ctx, inst); err != nil {
		e.logger.Error().Str("ticker", inst.Ticker).Err(err).Msg("Failed to save instrument after scan")
	}

	e.appendLog(ctx, &models.ScanLogEntry{
		Ticker:         inst.Ticker,
		InstrumentID:   inst.ID,
		Tab:            inst.Tab,
		Trigger:        trigger,
		Result:         state,
		PreviousPrice:  previousPrice,
		NewPrice:       quote.Price,
		PriceChangePct: priceChangePct,
		Provider:       fetched.Provider,
		DurationMS:     elapsed.Milliseconds(),
		Reasons:        item.Reasons,
	})

	if fired := e.notifier.Evaluate(ctx, inst, previousPrice); len(fired) > 0 {
		for _, n := range fired {
			e.logger.Info().
				Str("ticker", inst.Ticker).
				Str("type", string(n.Type)).
				Msg("Notification fired")
		}
	}

	e.rotateToBack(ctx, inst.ID)
}

// applyFailure marks the instrument unavailable with the returned reason and
// logs a failed/unavailable entry.
func (e *Executor) applyFailure(ctx context.Context, item models.ScanQueueItem, trigger models.TriggerType, fetched *models.FetchResult, elapsed time.Duration) {
	inst := item.Instrument

	for _, name := range fetched.UnavailableProviders {
		inst.MarkUnavailable(name, e.now())
	}
	inst.UnavailableReason = fetched.UnavailableReason

	state := models.ScanStateFailed
	if len(fetched.UnavailableProviders) > 0 {
		state = models.ScanStateUnavailable
	}

	inst.LastScan = models.ScanStatus{
		State:    state,
		Message:  fetched.UnavailableReason,
		At:       e.now(),
		Provider: inst.PreferredProvider,
	}

	if err := e.storage.Instruments().Save(ctx, inst); err != nil {
		e.logger.Error().Str("ticker", inst.Ticker).Err(err).Msg("Failed to save instrument after scan failure")
	}

	e.appendLog(ctx, &models.ScanLogEntry{
		Ticker:       inst.Ticker,
		InstrumentID: inst.ID,
		Tab:          inst.Tab,
		Trigger:      trigger,
		Result:       state,
		DurationMS:   elapsed.Milliseconds(),
		Reasons:      item.Reasons,
		Error:        fetched.UnavailableReason,
	})

	e.rotateToBack(ctx, inst.ID)
}

func (e *Executor) appendLog(ctx context.Context, entry *models.ScanLogEntry) {
	entry.ID = uuid.New().String()
	entry.At = e.now()
	if err := e.storage.ScanLog().Append(ctx, entry); err != nil {
		e.logger.Warn().Str("ticker", entry.Ticker).Err(err).Msg("Failed to append scan log entry")
	}
}

// rotateToBack moves the instrument to the back of the persisted manual
// order after every attempt, success or failure, implementing round-robin
// fairness. Safe as a read-modify-write because only one cycle runs at a
// time.
func (e *Executor) rotateToBack(ctx context.Context, instrumentID string) {
	order, err := e.watchlist.ManualOrder(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read manual order")
		return
	}
	if order == nil {
		order = make(map[string]int)
	}

	maxPos := 0
	for _, pos := range order {
		if pos > maxPos {
			maxPos = pos
		}
	}
	order[instrumentID] = maxPos + 1

	if err := e.watchlist.SetManualOrder(ctx, order); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to persist manual order")
	}
}
