package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// Service owns the refresh cycle. All instrument and scan-log mutation
// funnels through here, and a mutex guard ensures at most one cycle is in
// flight: a trigger arriving while one runs is dropped, not queued.
type Service struct {
	queue    *QueueManager
	executor *Executor
	limiter  interfaces.RateLimiter
	storage  interfaces.StorageManager
	hours    interfaces.MarketHours
	config   *common.Config
	logger   *common.Logger

	cycleMu sync.Mutex

	progressMu sync.Mutex
	progress   models.ScanProgress
}

// NewService creates the scanner service and hooks executor progress
// reporting into the service snapshot.
func NewService(
	queue *QueueManager,
	executor *Executor,
	limiter interfaces.RateLimiter,
	storage interfaces.StorageManager,
	hours interfaces.MarketHours,
	config *common.Config,
	logger *common.Logger,
) *Service {
	s := &Service{
		queue:    queue,
		executor: executor,
		limiter:  limiter,
		storage:  storage,
		hours:    hours,
		config:   config,
		logger:   logger,
	}
	executor.SetProgressFunc(s.setProgress)
	return s
}

func (s *Service) setProgress(current, total int, ticker string) {
	s.progressMu.Lock()
	s.progress = models.ScanProgress{Running: true, Current: current, Total: total, Ticker: ticker}
	s.progressMu.Unlock()
}

func (s *Service) clearProgress() {
	s.progressMu.Lock()
	s.progress = models.ScanProgress{}
	s.progressMu.Unlock()
}

// Progress returns a snapshot of the in-flight cycle.
func (s *Service) Progress() models.ScanProgress {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	return s.progress
}

// caps reads the quota numbers for batch sizing from the primary provider,
// the first enabled entry of the fallback chain.
func (s *Service) caps(ctx context.Context) BatchCaps {
	providers := s.config.EnabledProviders()
	if len(providers) == 0 {
		return BatchCaps{}
	}
	primary := providers[0]
	quota := s.config.Providers.ByName(primary).Quota()
	return BatchCaps{
		PerMinuteLimit: quota.PerMinute,
		AvailableQuota: s.limiter.AvailableRequests(ctx, primary),
	}
}

// manualOrder loads the persisted manual order map, tolerating absence.
func (s *Service) manualOrder(ctx context.Context) map[string]int {
	order, err := s.executor.watchlist.ManualOrder(ctx)
	if err != nil {
		return nil
	}
	return order
}

// RunBatch builds and executes a full quota-capped batch cycle.
// Returns ErrCycleInFlight when a cycle is already running.
func (s *Service) RunBatch(ctx context.Context, trigger models.TriggerType) (*models.CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return nil, interfaces.ErrCycleInFlight
	}
	defer s.cycleMu.Unlock()
	defer s.clearProgress()

	candidates, err := s.storage.Instruments().List(ctx, false)
	if err != nil {
		s.logger.Error().Err(err).Msg("Cycle aborted: instrument list failed")
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}

	batch, meta := s.queue.BuildBatch(candidates, s.manualOrder(ctx), s.caps(ctx))

	s.logger.Info().
		Str("trigger", string(trigger)).
		Int("batch", len(batch)).
		Int("candidates", meta.TotalCandidates).
		Int("skipped_fresh", meta.SkippedFresh).
		Int("skipped_unavailable", meta.SkippedUnavailable).
		Msg("Scan cycle starting")

	result := s.executor.Execute(ctx, batch, trigger, meta)

	s.logger.Info().
		Str("trigger", string(trigger)).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int64("duration_ms", result.DurationMS).
		Msg("Scan cycle complete")

	return result, nil
}

// RunSingle refreshes one instrument, bypassing freshness checks (the user
// asked for it explicitly). Returns ErrCycleInFlight when a cycle is running.
func (s *Service) RunSingle(ctx context.Context, instrumentID, forceProvider string, trigger models.TriggerType) (*models.CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return nil, interfaces.ErrCycleInFlight
	}
	defer s.cycleMu.Unlock()
	defer s.clearProgress()

	inst, err := s.storage.Instruments().Get(ctx, instrumentID)
	if err != nil {
		s.logger.Warn().Str("instrument", instrumentID).Err(err).Msg("Single refresh: instrument not found")
		return nil, fmt.Errorf("instrument %s not found: %w", instrumentID, err)
	}

	item := models.ScanQueueItem{
		Instrument:    inst,
		NeedsHistory:  common.IsHistoricalStale(inst.HistoryUpdated, &s.config.Scan),
		ForceProvider: forceProvider,
		Reasons:       []string{"user refresh"},
	}
	if forceProvider != "" {
		// A forced re-probe also clears the stale marker for that provider
		// on success, so don't let an old marker block the attempt.
		item.Reasons = append(item.Reasons, "forced provider "+forceProvider)
	}

	meta := models.BatchMeta{TotalCandidates: 1}
	return s.executor.Execute(ctx, []models.ScanQueueItem{item}, trigger, meta), nil
}

// RunAuto selects only the single highest-priority candidate whose market is
// currently open and runs it with trigger type auto. A no-op when no market
// is open or nothing is stale.
func (s *Service) RunAuto(ctx context.Context) (*models.CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return nil, interfaces.ErrCycleInFlight
	}
	defer s.cycleMu.Unlock()
	defer s.clearProgress()

	candidates, err := s.storage.Instruments().List(ctx, false)
	if err != nil {
		s.logger.Error().Err(err).Msg("Auto scan aborted: instrument list failed")
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}

	open := make([]*models.TrackedInstrument, 0, len(candidates))
	for _, inst := range candidates {
		if s.hours.IsMarketOpen(inst.Exchange) {
			open = append(open, inst)
		}
	}
	if len(open) == 0 {
		return &models.CycleResult{Trigger: models.TriggerAuto, Started: time.Now()}, nil
	}

	// The conservative auto scan ignores the manual order: it exists to
	// catch the most urgent open-market instrument, bucket first.
	batch, meta := s.queue.BuildBatch(open, nil, s.caps(ctx))
	if len(batch) == 0 {
		return &models.CycleResult{Trigger: models.TriggerAuto, Started: time.Now(), Meta: meta}, nil
	}

	best := batch[0]
	for _, item := range batch[1:] {
		if item.Bucket < best.Bucket ||
			(item.Bucket == best.Bucket && item.Instrument.Ticker < best.Instrument.Ticker) {
			best = item
		}
	}

	return s.executor.Execute(ctx, []models.ScanQueueItem{best}, models.TriggerAuto, meta), nil
}

// Ensure Service implements Scanner
var _ interfaces.Scanner = (*Service)(nil)
