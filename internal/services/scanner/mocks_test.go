package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

var errNotFound = errors.New("not found")

// mockProvider is a scripted provider client.
type mockProvider struct {
	name       string
	quote      *models.Quote
	quoteErr   error
	history    []models.Bar
	historyErr error

	quoteCalls   int
	historyCalls int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchQuote(ctx context.Context, ticker, exchange string) (*models.Quote, error) {
	m.quoteCalls++
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return m.quote, nil
}

func (m *mockProvider) FetchHistory(ctx context.Context, ticker, exchange string) ([]models.Bar, error) {
	m.historyCalls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

func (m *mockProvider) SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	return nil, nil
}

// mockLimiter tracks recorded calls and returns a fixed availability per
// provider. Providers absent from available default to plenty. With
// decrement set, each recorded call consumes one unit of availability.
type mockLimiter struct {
	available map[string]int
	recorded  []string
	decrement bool
}

func (m *mockLimiter) AvailableRequests(ctx context.Context, provider string) int {
	if m.available == nil {
		return 100
	}
	if n, ok := m.available[provider]; ok {
		return n
	}
	return 100
}

func (m *mockLimiter) RecordCall(ctx context.Context, provider string) error {
	m.recorded = append(m.recorded, provider)
	if m.decrement && m.available != nil {
		if n, ok := m.available[provider]; ok {
			m.available[provider] = n - 1
		}
	}
	return nil
}

func (m *mockLimiter) Quota(provider string) models.ProviderQuota { return models.ProviderQuota{} }

func (m *mockLimiter) UsageStats(ctx context.Context, provider string) models.ProviderUsageStats {
	return models.ProviderUsageStats{Provider: provider}
}

// mockMarketHours answers a fixed open/closed state.
type mockMarketHours struct {
	open bool
}

func (m *mockMarketHours) IsMarketOpen(exchange string) bool { return m.open }

// mockFetcher returns scripted results per ticker and remembers the options
// it was called with.
type mockFetcher struct {
	results map[string]*models.FetchResult
	calls   []fetchCall
}

type fetchCall struct {
	ticker string
	opts   interfaces.FetchOptions
}

func (m *mockFetcher) Fetch(ctx context.Context, ticker, exchange string, opts interfaces.FetchOptions) *models.FetchResult {
	m.calls = append(m.calls, fetchCall{ticker: ticker, opts: opts})
	if r, ok := m.results[ticker]; ok {
		return r
	}
	return &models.FetchResult{UnavailableReason: "no script for " + ticker}
}

// memInstruments is an in-memory InstrumentStore.
type memInstruments struct {
	mu    sync.Mutex
	items map[string]*models.TrackedInstrument
}

func newMemInstruments() *memInstruments {
	return &memInstruments{items: make(map[string]*models.TrackedInstrument)}
}

func (m *memInstruments) List(ctx context.Context, includeArchived bool) ([]*models.TrackedInstrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.TrackedInstrument, 0, len(m.items))
	for _, inst := range m.items {
		if inst.Archived && !includeArchived {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (m *memInstruments) Get(ctx context.Context, id string) (*models.TrackedInstrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.items[id]
	if !ok {
		return nil, errNotFound
	}
	return inst, nil
}

func (m *memInstruments) Save(ctx context.Context, inst *models.TrackedInstrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[inst.ID] = inst
	return nil
}

func (m *memInstruments) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// memScanLog is an in-memory ScanLogStore without capacity eviction.
type memScanLog struct {
	mu      sync.Mutex
	entries []*models.ScanLogEntry
}

func (m *memScanLog) Append(ctx context.Context, entry *models.ScanLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memScanLog) List(ctx context.Context, limit int) ([]*models.ScanLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ScanLogEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memScanLog) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// memNotifications is an in-memory NotificationStore.
type memNotifications struct {
	mu    sync.Mutex
	items []*models.Notification
}

func (m *memNotifications) Append(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
	return nil
}

func (m *memNotifications) List(ctx context.Context, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Notification, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *memNotifications) RecentMatch(ctx context.Context, instrumentID string, typ models.NotificationType, threshold float64, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.InstrumentID == instrumentID && n.Type == typ && n.Threshold == threshold && !n.At.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// memKV is an in-memory KVStore.
type memKV struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemKV() *memKV { return &memKV{items: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key], nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// memUsage is an in-memory UsageStore.
type memUsage struct {
	mu    sync.Mutex
	items map[string]*models.ProviderUsage
}

func newMemUsage() *memUsage { return &memUsage{items: make(map[string]*models.ProviderUsage)} }

func (m *memUsage) Get(ctx context.Context, provider string) (*models.ProviderUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.items[provider]; ok {
		cp := *u
		return &cp, nil
	}
	return &models.ProviderUsage{Provider: provider}, nil
}

func (m *memUsage) Save(ctx context.Context, usage *models.ProviderUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *usage
	m.items[usage.Provider] = &cp
	return nil
}

// mockStorage aggregates the in-memory stores into a StorageManager.
type mockStorage struct {
	instruments   *memInstruments
	scanLog       *memScanLog
	notifications *memNotifications
	usage         *memUsage
	kv            *memKV
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		instruments:   newMemInstruments(),
		scanLog:       &memScanLog{},
		notifications: &memNotifications{},
		usage:         newMemUsage(),
		kv:            newMemKV(),
	}
}

func (m *mockStorage) Instruments() interfaces.InstrumentStore     { return m.instruments }
func (m *mockStorage) ScanLog() interfaces.ScanLogStore            { return m.scanLog }
func (m *mockStorage) Notifications() interfaces.NotificationStore { return m.notifications }
func (m *mockStorage) Usage() interfaces.UsageStore                { return m.usage }
func (m *mockStorage) KV() interfaces.KVStore                      { return m.kv }
func (m *mockStorage) Close() error                                { return nil }

// mockNotifier records which instruments were evaluated.
type mockNotifier struct {
	evaluated []string
}

func (m *mockNotifier) Evaluate(ctx context.Context, inst *models.TrackedInstrument, previousPrice float64) []models.Notification {
	m.evaluated = append(m.evaluated, inst.Ticker)
	return nil
}

// mockWatchlist implements just enough of the Watchlist interface for the
// executor's manual order rotation.
type mockWatchlist struct {
	mu    sync.Mutex
	order map[string]int
}

func newMockWatchlist() *mockWatchlist { return &mockWatchlist{order: make(map[string]int)} }

func (m *mockWatchlist) List(ctx context.Context) ([]*models.TrackedInstrument, error) {
	return nil, nil
}
func (m *mockWatchlist) Get(ctx context.Context, id string) (*models.TrackedInstrument, error) {
	return nil, errNotFound
}
func (m *mockWatchlist) Add(ctx context.Context, inst *models.TrackedInstrument) error    { return nil }
func (m *mockWatchlist) Update(ctx context.Context, inst *models.TrackedInstrument) error { return nil }
func (m *mockWatchlist) Archive(ctx context.Context, id string) error                     { return nil }
func (m *mockWatchlist) Delete(ctx context.Context, id string) error                      { return nil }

func (m *mockWatchlist) ManualOrder(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.order))
	for k, v := range m.order {
		out[k] = v
	}
	return out, nil
}

func (m *mockWatchlist) SetManualOrder(ctx context.Context, order map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = order
	return nil
}

func (m *mockWatchlist) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	return nil, nil
}
