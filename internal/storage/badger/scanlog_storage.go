package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/timshannon/badgerhold/v4"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

type scanLogStorage struct {
	store    *Store
	logger   *common.Logger
	capacity int

	mu      sync.Mutex
	nextSeq uint64
}

// NewScanLogStorage creates a capacity-bounded ScanLogStore. Oldest entries
// are evicted first once capacity is exceeded.
func NewScanLogStorage(store *Store, logger *common.Logger, capacity int) (*scanLogStorage, error) {
	if capacity <= 0 {
		capacity = models.ScanLogCapacity
	}
	s := &scanLogStorage{store: store, logger: logger, capacity: capacity}

	// Resume the sequence counter from the newest persisted entry.
	entries, err := s.all()
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		s.nextSeq = entries[len(entries)-1].Seq + 1
	}

	return s, nil
}

// all returns every persisted entry ordered oldest first.
func (s *scanLogStorage) all() ([]*models.ScanLogEntry, error) {
	var entries []*models.ScanLogEntry
	if err := s.store.db.Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to read scan log: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

func (s *scanLogStorage) Append(_ context.Context, entry *models.ScanLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Seq = s.nextSeq
	if err := s.store.db.Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to append scan log entry: %w", err)
	}
	s.nextSeq++

	entries, err := s.all()
	if err != nil {
		return err
	}
	for len(entries) > s.capacity {
		oldest := entries[0]
		if err := s.store.db.Delete(oldest.ID, models.ScanLogEntry{}); err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to evict scan log entry: %w", err)
		}
		entries = entries[1:]
	}
	return nil
}

func (s *scanLogStorage) List(_ context.Context, limit int) ([]*models.ScanLogEntry, error) {
	entries, err := s.all()
	if err != nil {
		return nil, err
	}
	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *scanLogStorage) Count(_ context.Context) (int, error) {
	entries, err := s.all()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
