// Package notify evaluates alert rules after successful scans and emits
// de-duplicated notification events. Delivery is someone else's problem;
// this service only appends to the notification log, which doubles as the
// de-duplication record.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// dedupWindow is the repeat-suppression window for threshold and buy-signal
// alerts. Daily-drop alerts use the UTC calendar day instead.
const dedupWindow = 24 * time.Hour

// Service implements the Notifier interface.
type Service struct {
	store        interfaces.NotificationStore
	dailyDropPct float64
	logger       *common.Logger
	now          func() time.Time
}

// NewService creates a notifier. dailyDropPct is the day-change magnitude
// (as a positive percentage) that triggers a daily-drop alert.
func NewService(store interfaces.NotificationStore, dailyDropPct float64, logger *common.Logger) *Service {
	return &Service{
		store:        store,
		dailyDropPct: dailyDropPct,
		logger:       logger,
		now:          time.Now,
	}
}

// Evaluate runs all rules against a freshly scanned instrument and returns
// the notifications that actually fired.
func (s *Service) Evaluate(ctx context.Context, inst *models.TrackedInstrument, previousPrice float64) []models.Notification {
	var fired []models.Notification

	if n := s.evaluateDailyDrop(ctx, inst); n != nil {
		fired = append(fired, *n)
	}

	dist, ok := inst.DistanceToLimit()
	if ok {
		for _, threshold := range inst.AlertThresholds {
			if n := s.evaluateThreshold(ctx, inst, dist, threshold); n != nil {
				fired = append(fired, *n)
			}
		}
		if n := s.evaluateBuySignal(ctx, inst, dist); n != nil {
			fired = append(fired, *n)
		}
	}

	return fired
}

// evaluateDailyDrop fires once per UTC calendar day per instrument when the
// day change is a drop of at least the configured magnitude.
func (s *Service) evaluateDailyDrop(ctx context.Context, inst *models.TrackedInstrument) *models.Notification {
	if s.dailyDropPct <= 0 || inst.DayChangePct > -s.dailyDropPct {
		return nil
	}
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.emit(ctx, inst, models.NotificationDailyDrop, 0, dayStart,
		fmt.Sprintf("%s dropped %.2f%% today", inst.Ticker, -inst.DayChangePct))
}

// evaluateThreshold fires once per threshold per 24h when the distance to
// limit is at or inside the user's custom threshold.
func (s *Service) evaluateThreshold(ctx context.Context, inst *models.TrackedInstrument, dist, threshold float64) *models.Notification {
	if threshold <= 0 || dist > threshold || dist <= 0 {
		return nil
	}
	return s.emit(ctx, inst, models.NotificationDistanceThreshold, threshold, s.now().Add(-dedupWindow),
		fmt.Sprintf("%s is within %.1f%% of its buy limit (%.2f%% away)", inst.Ticker, threshold, dist))
}

// evaluateBuySignal fires once per 24h when the price is at or below the
// buy limit.
func (s *Service) evaluateBuySignal(ctx context.Context, inst *models.TrackedInstrument, dist float64) *models.Notification {
	if dist > 0 {
		return nil
	}
	return s.emit(ctx, inst, models.NotificationBuySignal, 0, s.now().Add(-dedupWindow),
		fmt.Sprintf("%s reached its buy limit at %.2f", inst.Ticker, inst.CurrentPrice))
}

// emit appends a notification unless a matching one exists since the given
// time.
func (s *Service) emit(ctx context.Context, inst *models.TrackedInstrument, typ models.NotificationType, threshold float64, since time.Time, message string) *models.Notification {
	seen, err := s.store.RecentMatch(ctx, inst.ID, typ, threshold, since)
	if err != nil {
		s.logger.Warn().Str("ticker", inst.Ticker).Err(err).Msg("Notification de-dup lookup failed")
		return nil
	}
	if seen {
		return nil
	}

	n := &models.Notification{
		ID:           uuid.New().String(),
		InstrumentID: inst.ID,
		Ticker:       inst.Ticker,
		Type:         typ,
		Threshold:    threshold,
		Message:      message,
		Price:        inst.CurrentPrice,
		At:           s.now(),
	}
	if err := s.store.Append(ctx, n); err != nil {
		s.logger.Warn().Str("ticker", inst.Ticker).Err(err).Msg("Failed to append notification")
		return nil
	}
	return n
}

// Ensure Service implements Notifier
var _ interfaces.Notifier = (*Service)(nil)
