package app

import (
	"context"
	"errors"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// runAutoScanLoop runs the conservative auto scan on a fixed interval: one
// instrument per tick, open markets only. A tick that lands while another
// cycle is running is dropped, not queued.
func runAutoScanLoop(ctx context.Context, scan interfaces.Scanner, interval time.Duration, logger *common.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Auto scan loop: stopped")
			return
		case <-ticker.C:
			runScanTick(ctx, logger, "auto", func() (*models.CycleResult, error) {
				return scan.RunAuto(ctx)
			})
		}
	}
}

// runBatchScanLoop runs a full quota-capped batch cycle on a longer interval.
func runBatchScanLoop(ctx context.Context, scan interfaces.Scanner, interval time.Duration, logger *common.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Batch scan loop: stopped")
			return
		case <-ticker.C:
			runScanTick(ctx, logger, "batch", func() (*models.CycleResult, error) {
				return scan.RunBatch(ctx, models.TriggerBatch)
			})
		}
	}
}

// runScanTick executes one timer tick with panic isolation so a failing
// cycle never kills the loop.
func runScanTick(ctx context.Context, logger *common.Logger, kind string, run func() (*models.CycleResult, error)) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Str("kind", kind).Msg("Scan tick panicked")
		}
	}()

	start := time.Now()
	result, err := run()
	if err != nil {
		if errors.Is(err, interfaces.ErrCycleInFlight) {
			logger.Debug().Str("kind", kind).Msg("Scan tick skipped: cycle in flight")
			return
		}
		logger.Warn().Err(err).Str("kind", kind).Msg("Scan tick failed")
		return
	}
	if result.Requested == 0 {
		return
	}

	logger.Info().
		Str("kind", kind).
		Int("requested", result.Requested).
		Int("succeeded", result.Succeeded).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled scan complete")
}
