package badger

import (
	"context"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

type usageStorage struct {
	store  *Store
	logger *common.Logger
}

// NewUsageStorage creates a new UsageStore backed by BadgerHold. Counters
// survive process restarts so a restart cannot reset a spent quota.
func NewUsageStorage(store *Store, logger *common.Logger) *usageStorage {
	return &usageStorage{store: store, logger: logger}
}

func (s *usageStorage) Get(_ context.Context, provider string) (*models.ProviderUsage, error) {
	var usage models.ProviderUsage
	err := s.store.db.Get(provider, &usage)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return &models.ProviderUsage{Provider: provider}, nil
		}
		return nil, fmt.Errorf("failed to get usage for '%s': %w", provider, err)
	}
	return &usage, nil
}

func (s *usageStorage) Save(_ context.Context, usage *models.ProviderUsage) error {
	if err := s.store.db.Upsert(usage.Provider, usage); err != nil {
		return fmt.Errorf("failed to save usage for '%s': %w", usage.Provider, err)
	}
	return nil
}
