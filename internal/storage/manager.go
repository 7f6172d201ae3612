// Package storage provides the top-level StorageManager wiring all persisted
// state to a single BadgerHold database.
package storage

import (
	"fmt"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
	"github.com/jmaxwell/limitwatch/internal/storage/badger"
)

type manager struct {
	store         *badger.Store
	instruments   interfaces.InstrumentStore
	scanLog       interfaces.ScanLogStore
	notifications interfaces.NotificationStore
	usage         interfaces.UsageStore
	kv            interfaces.KVStore
}

// NewStorageManager opens the BadgerHold store and builds all storage areas.
func NewStorageManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	store, err := badger.NewStore(logger, config.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	scanLog, err := badger.NewScanLogStorage(store, logger, models.ScanLogCapacity)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize scan log storage: %w", err)
	}

	return &manager{
		store:         store,
		instruments:   badger.NewInstrumentStorage(store, logger),
		scanLog:       scanLog,
		notifications: badger.NewNotificationStorage(store, logger),
		usage:         badger.NewUsageStorage(store, logger),
		kv:            badger.NewKVStorage(store, logger),
	}, nil
}

func (m *manager) Instruments() interfaces.InstrumentStore     { return m.instruments }
func (m *manager) ScanLog() interfaces.ScanLogStore            { return m.scanLog }
func (m *manager) Notifications() interfaces.NotificationStore { return m.notifications }
func (m *manager) Usage() interfaces.UsageStore                { return m.usage }
func (m *manager) KV() interfaces.KVStore                      { return m.kv }

func (m *manager) Close() error { return m.store.Close() }
