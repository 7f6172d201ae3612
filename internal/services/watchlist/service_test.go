package watchlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

var errNotFound = errors.New("not found")

type memInstruments struct {
	items map[string]*models.TrackedInstrument
}

func (m *memInstruments) List(ctx context.Context, includeArchived bool) ([]*models.TrackedInstrument, error) {
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
	inst, ok := m.items[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *inst
	return &cp, nil
}

func (m *memInstruments) Save(ctx context.Context, inst *models.TrackedInstrument) error {
	m.items[inst.ID] = inst
	return nil
}

func (m *memInstruments) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

type memKV struct {
	items map[string]string
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) { return m.items[key], nil }
func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.items[key] = value
	return nil
}
func (m *memKV) Delete(ctx context.Context, key string) error {
	delete(m.items, key)
	return nil
}

type mockStorage struct {
	instruments *memInstruments
	kv          *memKV
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		instruments: &memInstruments{items: make(map[string]*models.TrackedInstrument)},
		kv:          &memKV{items: make(map[string]string)},
	}
}

func (m *mockStorage) Instruments() interfaces.InstrumentStore     { return m.instruments }
func (m *mockStorage) ScanLog() interfaces.ScanLogStore            { return nil }
func (m *mockStorage) Notifications() interfaces.NotificationStore { return nil }
func (m *mockStorage) Usage() interfaces.UsageStore                { return nil }
func (m *mockStorage) KV() interfaces.KVStore                      { return m.kv }
func (m *mockStorage) Close() error                                { return nil }

type mockSearchProvider struct {
	matches []models.SymbolMatch
	err     error
	calls   int
}

func (m *mockSearchProvider) Name() string { return "eodhd" }
func (m *mockSearchProvider) FetchQuote(ctx context.Context, ticker, exchange string) (*models.Quote, error) {
	return nil, nil
}
func (m *mockSearchProvider) FetchHistory(ctx context.Context, ticker, exchange string) ([]models.Bar, error) {
	return nil, nil
}
func (m *mockSearchProvider) SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	m.calls++
	return m.matches, m.err
}

type mockLimiter struct {
	available int
	recorded  int
}

func (m *mockLimiter) AvailableRequests(ctx context.Context, provider string) int {
	return m.available
}
func (m *mockLimiter) RecordCall(ctx context.Context, provider string) error {
	m.recorded++
	return nil
}
func (m *mockLimiter) UsageStats(ctx context.Context, provider string) models.ProviderUsageStats {
	return models.ProviderUsageStats{Provider: provider}
}

func newTestService(t *testing.T) (*Service, *mockStorage, *mockSearchProvider, *mockLimiter) {
	t.Helper()
	storage := newMockStorage()
	search := &mockSearchProvider{}
	limiter := &mockLimiter{available: 10}
	return NewService(storage, search, limiter, common.NewSilentLogger()), storage, search, limiter
}

func TestAdd_NormalizesAndAssignsID(t *testing.T) {
	s, storage, _, _ := newTestService(t)

	inst := &models.TrackedInstrument{Ticker: " aapl ", Exchange: "us"}
	if err := s.Add(context.Background(), inst); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if inst.Ticker != "AAPL" || inst.Exchange != "US" {
		t.Errorf("normalized to %s.%s, want AAPL.US", inst.Ticker, inst.Exchange)
	}
	if inst.ID == "" {
		t.Errorf("ID not assigned")
	}
	if inst.AddedAt.IsZero() {
		t.Errorf("AddedAt not set")
	}
	if len(storage.instruments.items) != 1 {
		t.Errorf("store has %d instruments, want 1", len(storage.instruments.items))
	}
}

func TestAdd_RejectsEmptyTicker(t *testing.T) {
	s, _, _, _ := newTestService(t)
	if err := s.Add(context.Background(), &models.TrackedInstrument{Ticker: "  "}); err == nil {
		t.Fatalf("expected error for empty ticker")
	}
}

func TestAdd_RejectsDuplicate(t *testing.T) {
	s, _, _, _ := newTestService(t)
	ctx := context.Background()

	if err := s.Add(ctx, &models.TrackedInstrument{Ticker: "AAPL", Exchange: "US"}); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := s.Add(ctx, &models.TrackedInstrument{Ticker: "aapl", Exchange: "us"}); err == nil {
		t.Fatalf("duplicate (ticker, exchange) must be rejected")
	}
	// Same ticker on a different exchange is a different instrument.
	if err := s.Add(ctx, &models.TrackedInstrument{Ticker: "AAPL", Exchange: "F"}); err != nil {
		t.Errorf("same ticker on another exchange rejected: %v", err)
	}
}

func TestUpdate_PreservesScanOwnedFields(t *testing.T) {
	s, storage, _, _ := newTestService(t)
	ctx := context.Background()

	existing := &models.TrackedInstrument{
		ID:           "id-1",
		Ticker:       "AAPL",
		Exchange:     "US",
		CurrentPrice: 180,
		DayChangePct: -1.2,
		QuoteUpdated: time.Now(),
		History:      []models.Bar{{Close: 178}},
		LastScan:     models.ScanStatus{State: models.ScanStateSuccess},
	}
	storage.instruments.items["id-1"] = existing

	newBuy := 150.0
	update := &models.TrackedInstrument{
		ID:              "id-1",
		Tab:             "tech",
		BuyLimit:        &newBuy,
		AlertThresholds: []float64{5},
		CurrentPrice:    1, // must be ignored
	}
	if err := s.Update(ctx, update); err != nil {
		t.Fatalf("Update: %v", err)
	}

	saved := storage.instruments.items["id-1"]
	if saved.CurrentPrice != 180 || len(saved.History) != 1 {
		t.Errorf("scan-owned fields were overwritten")
	}
	if saved.Tab != "tech" || saved.BuyLimit == nil || *saved.BuyLimit != 150 {
		t.Errorf("user-editable fields not applied")
	}
	if saved.LastScan.State != models.ScanStateSuccess {
		t.Errorf("LastScan was overwritten")
	}
}

func TestArchive_HidesFromList(t *testing.T) {
	s, storage, _, _ := newTestService(t)
	ctx := context.Background()
	storage.instruments.items["id-1"] = &models.TrackedInstrument{ID: "id-1", Ticker: "AAPL"}

	if err := s.Archive(ctx, "id-1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	listed, _ := s.List(ctx)
	if len(listed) != 0 {
		t.Errorf("archived instrument still listed")
	}
	if _, ok := storage.instruments.items["id-1"]; !ok {
		t.Errorf("archive must not delete the instrument")
	}
}

func TestDelete_PrunesManualOrder(t *testing.T) {
	s, storage, _, _ := newTestService(t)
	ctx := context.Background()
	storage.instruments.items["id-1"] = &models.TrackedInstrument{ID: "id-1", Ticker: "AAPL"}
	storage.instruments.items["id-2"] = &models.TrackedInstrument{ID: "id-2", Ticker: "MSFT"}

	if err := s.SetManualOrder(ctx, map[string]int{"id-1": 1, "id-2": 2}); err != nil {
		t.Fatalf("SetManualOrder: %v", err)
	}
	if err := s.Delete(ctx, "id-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	order, err := s.ManualOrder(ctx)
	if err != nil {
		t.Fatalf("ManualOrder: %v", err)
	}
	if _, ok := order["id-1"]; ok {
		t.Errorf("deleted instrument still in manual order: %v", order)
	}
	if order["id-2"] != 2 {
		t.Errorf("unrelated order slot changed: %v", order)
	}
}

func TestManualOrder_AbsentMeansEmpty(t *testing.T) {
	s, _, _, _ := newTestService(t)
	order, err := s.ManualOrder(context.Background())
	if err != nil {
		t.Fatalf("ManualOrder: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("order = %v, want empty", order)
	}
}

func TestSetManualOrder_EmptyClears(t *testing.T) {
	s, storage, _, _ := newTestService(t)
	ctx := context.Background()

	s.SetManualOrder(ctx, map[string]int{"id-1": 1})
	if err := s.SetManualOrder(ctx, map[string]int{}); err != nil {
		t.Fatalf("SetManualOrder(empty): %v", err)
	}
	if _, ok := storage.kv.items[scanOrderKey]; ok {
		t.Errorf("empty order should clear the stored key")
	}
}

func TestSearch_RecordsQuota(t *testing.T) {
	s, _, search, limiter := newTestService(t)
	search.matches = []models.SymbolMatch{{Symbol: "AAPL", Exchange: "US"}}

	matches, err := s.Search(context.Background(), "apple")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("matches = %v, want one", matches)
	}
	if limiter.recorded != 1 {
		t.Errorf("search must record one provider call, recorded %d", limiter.recorded)
	}
}

func TestSearch_QuotaExhausted(t *testing.T) {
	s, _, search, limiter := newTestService(t)
	limiter.available = 0

	if _, err := s.Search(context.Background(), "apple"); err == nil {
		t.Fatalf("expected quota error")
	}
	if search.calls != 0 {
		t.Errorf("provider must not be called without quota")
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	s, _, search, _ := newTestService(t)
	if _, err := s.Search(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty query")
	}
	if search.calls != 0 {
		t.Errorf("provider must not be called for an empty query")
	}
}
