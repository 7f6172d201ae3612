// Package watchlist manages the tracked instrument set and the persisted
// manual scan order.
package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// Compile-time interface check
var _ interfaces.Watchlist = (*Service)(nil)

// scanOrderKey is the KV key holding the manual scan order as a JSON object
// of instrument ID to position.
const scanOrderKey = "scan_order"

// Service implements the Watchlist interface.
type Service struct {
	storage interfaces.StorageManager
	search  interfaces.ProviderClient
	limiter interfaces.RateLimiter
	logger  *common.Logger
}

// NewService creates a watchlist service. search may be nil when no provider
// is configured; Search then returns an error.
func NewService(storage interfaces.StorageManager, search interfaces.ProviderClient, limiter interfaces.RateLimiter, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		search:  search,
		limiter: limiter,
		logger:  logger,
	}
}

// List returns all non-archived instruments sorted by ticker.
func (s *Service) List(ctx context.Context) ([]*models.TrackedInstrument, error) {
	return s.storage.Instruments().List(ctx, false)
}

// Get retrieves one instrument by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.TrackedInstrument, error) {
	return s.storage.Instruments().Get(ctx, id)
}

// Add stores a new instrument. The ticker is normalized to upper case and
// duplicates on (ticker, exchange) are rejected.
func (s *Service) Add(ctx context.Context, inst *models.TrackedInstrument) error {
	inst.Ticker = strings.ToUpper(strings.TrimSpace(inst.Ticker))
	inst.Exchange = strings.ToUpper(strings.TrimSpace(inst.Exchange))
	if inst.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}

	existing, err := s.storage.Instruments().List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list instruments: %w", err)
	}
	for _, e := range existing {
		if e.Ticker == inst.Ticker && e.Exchange == inst.Exchange {
			return fmt.Errorf("instrument %s.%s already tracked", inst.Ticker, inst.Exchange)
		}
	}

	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.AddedAt.IsZero() {
		inst.AddedAt = time.Now()
	}
	if err := s.storage.Instruments().Save(ctx, inst); err != nil {
		return fmt.Errorf("failed to save instrument: %w", err)
	}

	s.logger.Info().Str("ticker", inst.Ticker).Str("exchange", inst.Exchange).Msg("Instrument added")
	return nil
}

// Update applies user-editable fields to an existing instrument. Scan-owned
// fields (prices, history, status, unavailability markers) are preserved.
func (s *Service) Update(ctx context.Context, inst *models.TrackedInstrument) error {
	existing, err := s.storage.Instruments().Get(ctx, inst.ID)
	if err != nil {
		return fmt.Errorf("failed to get instrument: %w", err)
	}

	existing.Tab = inst.Tab
	existing.BuyLimit = inst.BuyLimit
	existing.AlertThresholds = inst.AlertThresholds
	existing.PreferredProvider = inst.PreferredProvider
	existing.CustomChecked = inst.CustomChecked
	if inst.Currency != "" {
		existing.Currency = inst.Currency
	}

	if err := s.storage.Instruments().Save(ctx, existing); err != nil {
		return fmt.Errorf("failed to save instrument: %w", err)
	}

	s.logger.Info().Str("ticker", existing.Ticker).Msg("Instrument updated")
	return nil
}

// Archive hides an instrument from the watchlist and from future scans
// without discarding its data.
func (s *Service) Archive(ctx context.Context, id string) error {
	inst, err := s.storage.Instruments().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get instrument: %w", err)
	}
	inst.Archived = true
	if err := s.storage.Instruments().Save(ctx, inst); err != nil {
		return fmt.Errorf("failed to save instrument: %w", err)
	}
	s.logger.Info().Str("ticker", inst.Ticker).Msg("Instrument archived")
	return nil
}

// Delete removes an instrument permanently, including its manual order slot.
func (s *Service) Delete(ctx context.Context, id string) error {
	inst, err := s.storage.Instruments().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get instrument: %w", err)
	}
	if err := s.storage.Instruments().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete instrument: %w", err)
	}

	if order, err := s.ManualOrder(ctx); err == nil {
		if _, ok := order[id]; ok {
			delete(order, id)
			if err := s.SetManualOrder(ctx, order); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to prune manual order after delete")
			}
		}
	}

	s.logger.Info().Str("ticker", inst.Ticker).Msg("Instrument deleted")
	return nil
}

// ManualOrder returns the persisted manual scan order. An empty map means
// no manual order is set and scans fall back to priority scoring.
func (s *Service) ManualOrder(ctx context.Context) (map[string]int, error) {
	raw, err := s.storage.KV().Get(ctx, scanOrderKey)
	if err != nil || raw == "" {
		return map[string]int{}, nil
	}
	order := map[string]int{}
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, fmt.Errorf("failed to decode manual order: %w", err)
	}
	return order, nil
}

// SetManualOrder persists the manual scan order. An empty or nil map clears
// it.
func (s *Service) SetManualOrder(ctx context.Context, order map[string]int) error {
	if len(order) == 0 {
		return s.storage.KV().Delete(ctx, scanOrderKey)
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode manual order: %w", err)
	}
	return s.storage.KV().Set(ctx, scanOrderKey, string(raw))
}

// Search looks up symbols on the primary provider. The call spends real
// provider quota, so it is recorded against the limiter.
func (s *Service) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if s.search == nil {
		return nil, fmt.Errorf("no search provider configured")
	}
	if s.limiter.AvailableRequests(ctx, s.search.Name()) <= 0 {
		return nil, fmt.Errorf("provider %s quota exhausted", s.search.Name())
	}

	matches, err := s.search.SearchSymbols(ctx, query)
	if recordErr := s.limiter.RecordCall(ctx, s.search.Name()); recordErr != nil {
		s.logger.Warn().Err(recordErr).Msg("Failed to record search quota usage")
	}
	if err != nil {
		return nil, fmt.Errorf("symbol search failed: %w", err)
	}
	return matches, nil
}
