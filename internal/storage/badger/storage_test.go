package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(common.NewSilentLogger(), t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestScanLog_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s, err := NewScanLogStorage(newTestStore(t), common.NewSilentLogger(), 10)
	if err != nil {
		t.Fatalf("NewScanLogStorage: %v", err)
	}

	for i := 0; i < 3; i++ {
		err := s.Append(ctx, &models.ScanLogEntry{
			ID:     uuid.New().String(),
			Ticker: fmt.Sprintf("TK%d", i),
			At:     time.Now(),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Ticker != "TK2" || entries[2].Ticker != "TK0" {
		t.Errorf("entries not newest-first: %s .. %s", entries[0].Ticker, entries[2].Ticker)
	}
}

func TestScanLog_CapacityEviction(t *testing.T) {
	ctx := context.Background()
	s, err := NewScanLogStorage(newTestStore(t), common.NewSilentLogger(), 5)
	if err != nil {
		t.Fatalf("NewScanLogStorage: %v", err)
	}

	for i := 0; i < 8; i++ {
		err := s.Append(ctx, &models.ScanLogEntry{
			ID:     uuid.New().String(),
			Ticker: fmt.Sprintf("TK%d", i),
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 5 {
		t.Errorf("Count = %d, want capacity 5", count)
	}

	entries, _ := s.List(ctx, 0)
	// Oldest three evicted: the oldest surviving entry is TK3.
	if entries[len(entries)-1].Ticker != "TK3" {
		t.Errorf("oldest surviving entry = %s, want TK3", entries[len(entries)-1].Ticker)
	}
	if entries[0].Ticker != "TK7" {
		t.Errorf("newest entry = %s, want TK7", entries[0].Ticker)
	}
}

func TestScanLog_SequenceResumesAfterReopen(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	logger := common.NewSilentLogger()

	s1, err := NewScanLogStorage(store, logger, 10)
	if err != nil {
		t.Fatalf("NewScanLogStorage: %v", err)
	}
	s1.Append(ctx, &models.ScanLogEntry{ID: uuid.New().String(), Ticker: "OLD"})

	// A second storage over the same store continues the sequence, so
	// ordering across restarts holds.
	s2, err := NewScanLogStorage(store, logger, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Append(ctx, &models.ScanLogEntry{ID: uuid.New().String(), Ticker: "NEW"})

	entries, _ := s2.List(ctx, 0)
	if len(entries) != 2 || entries[0].Ticker != "NEW" {
		t.Errorf("sequence did not resume: %+v", entries)
	}
}

func TestScanLog_ListLimit(t *testing.T) {
	ctx := context.Background()
	s, _ := NewScanLogStorage(newTestStore(t), common.NewSilentLogger(), 10)
	for i := 0; i < 4; i++ {
		s.Append(ctx, &models.ScanLogEntry{ID: uuid.New().String(), Ticker: fmt.Sprintf("TK%d", i)})
	}

	entries, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Ticker != "TK3" {
		t.Errorf("limited list = %+v, want the two newest", entries)
	}
}

func TestInstrumentStorage_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewInstrumentStorage(newTestStore(t), common.NewSilentLogger())

	buy := 100.0
	inst := &models.TrackedInstrument{
		ID:       "id-1",
		Ticker:   "AAPL",
		Exchange: "US",
		BuyLimit: &buy,
	}
	if err := s.Save(ctx, inst); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "id-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Ticker != "AAPL" || got.BuyLimit == nil || *got.BuyLimit != 100 {
		t.Errorf("roundtrip lost data: %+v", got)
	}

	if err := s.Delete(ctx, "id-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "id-1"); err == nil {
		t.Errorf("Get after delete should fail")
	}
}

func TestInstrumentStorage_SaveRequiresID(t *testing.T) {
	s := NewInstrumentStorage(newTestStore(t), common.NewSilentLogger())
	if err := s.Save(context.Background(), &models.TrackedInstrument{Ticker: "AAPL"}); err == nil {
		t.Fatalf("Save without ID must fail")
	}
}

func TestInstrumentStorage_ListFiltersArchived(t *testing.T) {
	ctx := context.Background()
	s := NewInstrumentStorage(newTestStore(t), common.NewSilentLogger())

	s.Save(ctx, &models.TrackedInstrument{ID: "id-1", Ticker: "AAPL"})
	s.Save(ctx, &models.TrackedInstrument{ID: "id-2", Ticker: "MSFT", Archived: true})

	active, err := s.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].Ticker != "AAPL" {
		t.Errorf("active list = %+v, want only AAPL", active)
	}

	all, _ := s.List(ctx, true)
	if len(all) != 2 {
		t.Errorf("full list has %d instruments, want 2", len(all))
	}
}

func TestKVStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewKVStorage(newTestStore(t), common.NewSilentLogger())

	if err := s.Set(ctx, "scan_order", `{"id-1":1}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, "scan_order")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != `{"id-1":1}` {
		t.Errorf("Get = %q", v)
	}

	if err := s.Delete(ctx, "scan_order"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "scan_order"); err == nil {
		t.Errorf("Get after delete should fail")
	}
	// Deleting a missing key is not an error.
	if err := s.Delete(ctx, "scan_order"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestUsageStorage_MissingProviderIsZero(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStorage(newTestStore(t), common.NewSilentLogger())

	usage, err := s.Get(ctx, "eodhd")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if usage.Provider != "eodhd" || usage.MinuteCount != 0 || usage.DayCount != 0 {
		t.Errorf("missing provider usage = %+v, want zeroed", usage)
	}
}

func TestUsageStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStorage(newTestStore(t), common.NewSilentLogger())

	saved := &models.ProviderUsage{
		Provider:      "eodhd",
		MinuteCount:   3,
		MinuteResetAt: time.Now().Add(time.Minute),
		DayCount:      17,
		DayResetAt:    time.Now().Add(10 * time.Hour),
	}
	if err := s.Save(ctx, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "eodhd")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MinuteCount != 3 || got.DayCount != 17 {
		t.Errorf("counters lost: %+v", got)
	}
}

func TestNotificationStorage_RecentMatch(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStorage(newTestStore(t), common.NewSilentLogger())

	now := time.Now()
	s.Append(ctx, &models.Notification{
		ID:           uuid.New().String(),
		InstrumentID: "id-1",
		Type:         models.NotificationDistanceThreshold,
		Threshold:    5,
		At:           now.Add(-2 * time.Hour),
	})

	match, err := s.RecentMatch(ctx, "id-1", models.NotificationDistanceThreshold, 5, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("RecentMatch: %v", err)
	}
	if !match {
		t.Errorf("expected a match within the window")
	}

	// Outside the window.
	if match, _ := s.RecentMatch(ctx, "id-1", models.NotificationDistanceThreshold, 5, now.Add(-time.Hour)); match {
		t.Errorf("entry older than since must not match")
	}
	// Different threshold de-dups independently.
	if match, _ := s.RecentMatch(ctx, "id-1", models.NotificationDistanceThreshold, 2, now.Add(-24*time.Hour)); match {
		t.Errorf("different threshold must not match")
	}
	// Different type.
	if match, _ := s.RecentMatch(ctx, "id-1", models.NotificationBuySignal, 5, now.Add(-24*time.Hour)); match {
		t.Errorf("different type must not match")
	}
}

func TestNotificationStorage_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStorage(newTestStore(t), common.NewSilentLogger())

	now := time.Now()
	for i := 0; i < 3; i++ {
		s.Append(ctx, &models.Notification{
			ID:     uuid.New().String(),
			Ticker: fmt.Sprintf("TK%d", i),
			At:     now.Add(time.Duration(i) * time.Minute),
		})
	}

	list, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Ticker != "TK2" {
		t.Errorf("List = %+v, want two newest first", list)
	}
}
