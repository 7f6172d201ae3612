package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

type notificationStorage struct {
	store  *Store
	logger *common.Logger
}

// NewNotificationStorage creates a new NotificationStore backed by BadgerHold.
func NewNotificationStorage(store *Store, logger *common.Logger) *notificationStorage {
	return &notificationStorage{store: store, logger: logger}
}

func (s *notificationStorage) Append(_ context.Context, n *models.Notification) error {
	if err := s.store.db.Insert(n.ID, n); err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

func (s *notificationStorage) List(_ context.Context, limit int) ([]*models.Notification, error) {
	var notifications []*models.Notification
	if err := s.store.db.Find(&notifications, nil); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].At.After(notifications[j].At)
	})
	if limit > 0 && limit < len(notifications) {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

// RecentMatch reports whether a notification with the same instrument, type
// and threshold exists at or after since. This is the de-duplication lookup
// used before firing a new alert.
func (s *notificationStorage) RecentMatch(_ context.Context, instrumentID string, typ models.NotificationType, threshold float64, since time.Time) (bool, error) {
	var matches []*models.Notification
	q := badgerhold.Where("InstrumentID").Eq(instrumentID)
	if err := s.store.db.Find(&matches, q); err != nil {
		return false, fmt.Errorf("failed to query notifications: %w", err)
	}
	for _, n := range matches {
		if n.Type == typ && n.Threshold == threshold && !n.At.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
