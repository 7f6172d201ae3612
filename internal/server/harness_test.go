package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jmaxwell/limitwatch/internal/app"
	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

var errNotFound = errors.New("not found")

// testHarness wires a Server around mock services so handler tests can
// drive the full middleware and routing stack through httptest.
type testHarness struct {
	t         *testing.T
	app       *app.App
	handler   http.Handler
	scanner   *mockScanner
	watchlist *mockWatchlist
	storage   *mockStorage
	limiter   *mockLimiter
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Providers.EODHD.APIKey = "test-key"
	cfg.Providers.Finnhub.APIKey = "test-key"

	scanner := &mockScanner{}
	watchlist := newMockWatchlist()
	storage := newMockStorage()
	limiter := &mockLimiter{}

	a := &app.App{
		Config:      cfg,
		Logger:      common.NewSilentLogger(),
		Storage:     storage,
		RateLimiter: limiter,
		Watchlist:   watchlist,
		Scanner:     scanner,
		StartupTime: time.Now(),
	}

	return &testHarness{
		t:         t,
		app:       a,
		handler:   NewServer(a).Handler(),
		scanner:   scanner,
		watchlist: watchlist,
		storage:   storage,
		limiter:   limiter,
	}
}

// mockScanner is a scripted Scanner.
type mockScanner struct {
	batchResult  *models.CycleResult
	batchErr     error
	inFlight     bool
	batchCalls   int
	batchTrigger models.TriggerType

	singleResult *models.CycleResult
	singleCalls  int
	singleID     string
	singleForce  string

	progress models.ScanProgress
}

func (m *mockScanner) RunBatch(ctx context.Context, trigger models.TriggerType) (*models.CycleResult, error) {
	m.batchCalls++
	m.batchTrigger = trigger
	if m.inFlight {
		return nil, interfaces.ErrCycleInFlight
	}
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	if m.batchResult != nil {
		return m.batchResult, nil
	}
	return &models.CycleResult{Trigger: trigger, Started: time.Now()}, nil
}

func (m *mockScanner) RunSingle(ctx context.Context, instrumentID, forceProvider string, trigger models.TriggerType) (*models.CycleResult, error) {
	m.singleCalls++
	m.singleID = instrumentID
	m.singleForce = forceProvider
	if m.inFlight {
		return nil, interfaces.ErrCycleInFlight
	}
	if m.singleResult != nil {
		return m.singleResult, nil
	}
	return &models.CycleResult{Trigger: trigger, Started: time.Now(), Requested: 1, Succeeded: 1}, nil
}

func (m *mockScanner) RunAuto(ctx context.Context) (*models.CycleResult, error) {
	return &models.CycleResult{Trigger: models.TriggerAuto, Started: time.Now()}, nil
}

func (m *mockScanner) Progress() models.ScanProgress { return m.progress }

// mockWatchlist is an in-memory Watchlist.
type mockWatchlist struct {
	items         map[string]*models.TrackedInstrument
	order         map[string]int
	searchMatches []models.SymbolMatch
	searchErr     error
	addErr        error
}

func newMockWatchlist() *mockWatchlist {
	return &mockWatchlist{
		items: make(map[string]*models.TrackedInstrument),
		order: make(map[string]int),
	}
}

func (m *mockWatchlist) List(ctx context.Context) ([]*models.TrackedInstrument, error) {
	out := make([]*models.TrackedInstrument, 0, len(m.items))
	for _, inst := range m.items {
		if !inst.Archived {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *mockWatchlist) Get(ctx context.Context, id string) (*models.TrackedInstrument, error) {
	inst, ok := m.items[id]
	if !ok {
		return nil, errNotFound
	}
	return inst, nil
}

func (m *mockWatchlist) Add(ctx context.Context, inst *models.TrackedInstrument) error {
	if m.addErr != nil {
		return m.addErr
	}
	if inst.ID == "" {
		inst.ID = "generated-" + inst.Ticker
	}
	m.items[inst.ID] = inst
	return nil
}

func (m *mockWatchlist) Update(ctx context.Context, inst *models.TrackedInstrument) error {
	if _, ok := m.items[inst.ID]; !ok {
		return errNotFound
	}
	m.items[inst.ID] = inst
	return nil
}

func (m *mockWatchlist) Archive(ctx context.Context, id string) error {
	inst, ok := m.items[id]
	if !ok {
		return errNotFound
	}
	inst.Archived = true
	return nil
}

func (m *mockWatchlist) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return errNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockWatchlist) ManualOrder(ctx context.Context) (map[string]int, error) {
	return m.order, nil
}

func (m *mockWatchlist) SetManualOrder(ctx context.Context, order map[string]int) error {
	m.order = order
	return nil
}

func (m *mockWatchlist) Search(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchMatches, nil
}

// mockLimiter returns fixed usage stats.
type mockLimiter struct {
	stats map[string]models.ProviderUsageStats
}

func (m *mockLimiter) AvailableRequests(ctx context.Context, provider string) int { return 10 }
func (m *mockLimiter) RecordCall(ctx context.Context, provider string) error      { return nil }
func (m *mockLimiter) UsageStats(ctx context.Context, provider string) models.ProviderUsageStats {
	if s, ok := m.stats[provider]; ok {
		return s
	}
	return models.ProviderUsageStats{Provider: provider}
}

// memScanLog is an in-memory ScanLogStore.
type memScanLog struct {
	entries []*models.ScanLogEntry
}

func (m *memScanLog) Append(ctx context.Context, entry *models.ScanLogEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memScanLog) List(ctx context.Context, limit int) ([]*models.ScanLogEntry, error) {
	if limit > 0 && limit < len(m.entries) {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

func (m *memScanLog) Count(ctx context.Context) (int, error) { return len(m.entries), nil }

// memNotifications is an in-memory NotificationStore.
type memNotifications struct {
	items []*models.Notification
}

func (m *memNotifications) Append(ctx context.Context, n *models.Notification) error {
	m.items = append(m.items, n)
	return nil
}

func (m *memNotifications) List(ctx context.Context, limit int) ([]*models.Notification, error) {
	if limit > 0 && limit < len(m.items) {
		return m.items[:limit], nil
	}
	return m.items, nil
}

func (m *memNotifications) RecentMatch(ctx context.Context, instrumentID string, typ models.NotificationType, threshold float64, since time.Time) (bool, error) {
	return false, nil
}

// mockStorage aggregates the in-memory stores.
type mockStorage struct {
	scanLog       *memScanLog
	notifications *memNotifications
}

func newMockStorage() *mockStorage {
	return &mockStorage{scanLog: &memScanLog{}, notifications: &memNotifications{}}
}

func (m *mockStorage) Instruments() interfaces.InstrumentStore     { return nil }
func (m *mockStorage) ScanLog() interfaces.ScanLogStore            { return m.scanLog }
func (m *mockStorage) Notifications() interfaces.NotificationStore { return m.notifications }
func (m *mockStorage) Usage() interfaces.UsageStore                { return nil }
func (m *mockStorage) KV() interfaces.KVStore                      { return nil }
func (m *mockStorage) Close() error                                { return nil }
