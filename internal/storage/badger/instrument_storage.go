package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/timshannon/badgerhold/v4"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

type instrumentStorage struct {
	store  *Store
	logger *common.Logger
}

// NewInstrumentStorage creates a new InstrumentStore backed by BadgerHold.
func NewInstrumentStorage(store *Store, logger *common.Logger) *instrumentStorage {
	return &instrumentStorage{store: store, logger: logger}
}

func (s *instrumentStorage) List(_ context.Context, includeArchived bool) ([]*models.TrackedInstrument, error) {
	var instruments []*models.TrackedInstrument
	if err := s.store.db.Find(&instruments, nil); err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}

	if !includeArchived {
		active := instruments[:0]
		for _, inst := range instruments {
			if !inst.Archived {
				active = append(active, inst)
			}
		}
		instruments = active
	}

	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Ticker < instruments[j].Ticker
	})
	return instruments, nil
}

func (s *instrumentStorage) Get(_ context.Context, id string) (*models.TrackedInstrument, error) {
	var inst models.TrackedInstrument
	err := s.store.db.Get(id, &inst)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("instrument '%s' not found", id)
		}
		return nil, fmt.Errorf("failed to get instrument '%s': %w", id, err)
	}
	return &inst, nil
}

func (s *instrumentStorage) Save(_ context.Context, inst *models.TrackedInstrument) error {
	if inst.ID == "" {
		return fmt.Errorf("instrument has no id")
	}
	if err := s.store.db.Upsert(inst.ID, inst); err != nil {
		return fmt.Errorf("failed to save instrument '%s': %w", inst.ID, err)
	}
	return nil
}

func (s *instrumentStorage) Delete(_ context.Context, id string) error {
	err := s.store.db.Delete(id, models.TrackedInstrument{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete instrument '%s': %w", id, err)
	}
	return nil
}
