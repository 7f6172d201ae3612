// Package ratelimit accounts per-provider API calls against minute and day
// quotas. The tracker is the single source of truth for "may I call provider
// P now": batch sizing reads it before a cycle and every actual network
// attempt is recorded against it, never speculatively.
//
// Window semantics: the minute window is a fixed 60-second bucket opened by
// the first call after a reset; the day window resets at UTC midnight.
// Counters are persisted so a restart cannot refund spent quota.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// Tracker implements the RateLimiter interface.
type Tracker struct {
	quotas map[string]models.ProviderQuota
	store  interfaces.UsageStore
	logger *common.Logger
	now    func() time.Time // injectable clock for testing

	mu sync.Mutex
}

// NewTracker creates a tracker for the given provider quotas.
func NewTracker(quotas map[string]models.ProviderQuota, store interfaces.UsageStore, logger *common.Logger) *Tracker {
	return &Tracker{
		quotas: quotas,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Quota returns the configured quota for a provider.
func (t *Tracker) Quota(provider string) models.ProviderQuota {
	return t.quotas[provider]
}

// nextUTCMidnight returns the start of the next UTC day.
func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// applyResets rolls expired windows forward. Mutates usage in place.
func (t *Tracker) applyResets(usage *models.ProviderUsage, now time.Time) {
	if !usage.MinuteResetAt.IsZero() && !now.Before(usage.MinuteResetAt) {
		usage.MinuteCount = 0
		usage.MinuteResetAt = time.Time{}
	}
	if usage.DayResetAt.IsZero() || !now.Before(usage.DayResetAt) {
		usage.DayCount = 0
		usage.DayResetAt = nextUTCMidnight(now)
	}
}

// RecordCall increments both windows for a provider. Called after every
// actual network attempt, success or failure.
func (t *Tracker) RecordCall(ctx context.Context, provider string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	usage, err := t.store.Get(ctx, provider)
	if err != nil {
		return err
	}

	now := t.now()
	t.applyResets(usage, now)

	if usage.MinuteResetAt.IsZero() {
		// First call of a fresh bucket opens a fixed 60s window.
		usage.MinuteResetAt = now.Add(time.Minute)
	}
	usage.MinuteCount++
	usage.DayCount++

	return t.store.Save(ctx, usage)
}

// AvailableRequests returns min(minute remaining, day remaining) for a
// provider, clamped to zero. Unknown providers have no quota.
func (t *Tracker) AvailableRequests(ctx context.Context, provider string) int {
	quota, ok := t.quotas[provider]
	if !ok {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	usage, err := t.store.Get(ctx, provider)
	if err != nil {
		t.logger.Warn().Str("provider", provider).Err(err).Msg("Usage read failed, assuming no quota")
		return 0
	}
	t.applyResets(usage, t.now())

	minuteRemaining := quota.PerMinute - usage.MinuteCount
	dayRemaining := quota.PerDay - usage.DayCount
	remaining := minuteRemaining
	if dayRemaining < remaining {
		remaining = dayRemaining
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// UsageStats exposes used/limit/reset-in for both windows.
func (t *Tracker) UsageStats(ctx context.Context, provider string) models.ProviderUsageStats {
	quota := t.quotas[provider]

	t.mu.Lock()
	defer t.mu.Unlock()

	stats := models.ProviderUsageStats{
		Provider:    provider,
		MinuteLimit: quota.PerMinute,
		DayLimit:    quota.PerDay,
	}

	usage, err := t.store.Get(ctx, provider)
	if err != nil {
		return stats
	}
	now := t.now()
	t.applyResets(usage, now)

	stats.MinuteUsed = usage.MinuteCount
	stats.DayUsed = usage.DayCount
	if !usage.MinuteResetAt.IsZero() {
		stats.MinuteResetIn = usage.MinuteResetAt.Sub(now)
	}
	stats.DayResetIn = usage.DayResetAt.Sub(now)

	minuteRemaining := quota.PerMinute - usage.MinuteCount
	dayRemaining := quota.PerDay - usage.DayCount
	available := minuteRemaining
	if dayRemaining < available {
		available = dayRemaining
	}
	if available < 0 {
		available = 0
	}
	stats.Available = available

	return stats
}
