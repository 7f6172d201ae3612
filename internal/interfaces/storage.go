// Package interfaces defines service contracts for limitwatch
package interfaces

import (
	"context"
	"time"

	"github.com/jmaxwell/limitwatch/internal/models"
)

// InstrumentStore persists tracked instruments.
type InstrumentStore interface {
	List(ctx context.Context, includeArchived bool) ([]*models.TrackedInstrument, error)
	Get(ctx context.Context, id string) (*models.TrackedInstrument, error)
	Save(ctx context.Context, inst *models.TrackedInstrument) error
	Delete(ctx context.Context, id string) error
}

// ScanLogStore persists the capacity-bounded FIFO scan log.
type ScanLogStore interface {
	// Append adds an entry and evicts the oldest entries beyond capacity.
	Append(ctx context.Context, entry *models.ScanLogEntry) error
	List(ctx context.Context, limit int) ([]*models.ScanLogEntry, error)
	Count(ctx context.Context) (int, error)
}

// NotificationStore persists fired notifications and answers de-dup lookups.
type NotificationStore interface {
	Append(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, limit int) ([]*models.Notification, error)

	// RecentMatch reports whether a notification with the same instrument,
	// type and threshold exists at or after since.
	RecentMatch(ctx context.Context, instrumentID string, typ models.NotificationType, threshold float64, since time.Time) (bool, error)
}

// UsageStore persists per-provider call counters across restarts.
type UsageStore interface {
	Get(ctx context.Context, provider string) (*models.ProviderUsage, error)
	Save(ctx context.Context, usage *models.ProviderUsage) error
}

// KVStore is a small string key-value store for settings and the persisted
// manual scan order.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StorageManager aggregates all storage areas.
type StorageManager interface {
	Instruments() InstrumentStore
	ScanLog() ScanLogStore
	Notifications() NotificationStore
	Usage() UsageStore
	KV() KVStore
	Close() error
}
