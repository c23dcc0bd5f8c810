package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/service/database"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRepository(t *testing.T, now time.Time) *Repository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Dialect: database.DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "analytics.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	repo := NewRepository(db, zap.NewNop())
	repo.now = func() time.Time { return now }
	return repo
}

func interaction(msg, intent string, source domain.Source, score float64, at time.Time) domain.Interaction {
	return domain.Interaction{
		ID:              uuid.NewString(),
		Message:         msg,
		NormalizedInput: msg,
		IntentID:        intent,
		Source:          source,
		Score:           score,
		CreatedAt:       at,
	}
}

func TestFallbackReport(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	repo := newTestRepository(t, now)
	ctx := context.Background()
	yesterday := now.Add(-24 * time.Hour)

	rows := []domain.Interaction{
		interaction("fiyat", "pricing", domain.SourceDeterministicEngine, 10, now),
		interaction("hava", "", domain.SourceFallback, 0, now),
		interaction("hava", "", domain.SourceFallback, 0, yesterday),
		interaction("kampanya", "", domain.SourcePresetMenu, 0, yesterday),
		// outside the window
		interaction("eski", "", domain.SourceFallback, 0, now.AddDate(0, 0, -30)),
	}
	for _, row := range rows {
		if err := repo.Insert(ctx, row); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	report, err := repo.FallbackReport(ctx, 7, []string{"pricing", "contact"})
	if err != nil {
		t.Fatalf("FallbackReport: %v", err)
	}

	if report.TotalMessages != 4 || report.FallbackMessages != 3 || report.FallbackRate != 75 {
		t.Fatalf("totals = %d/%d rate %v", report.FallbackMessages, report.TotalMessages, report.FallbackRate)
	}
	wantTop := []domain.QueryCount{
		{Query: "hava", Normalized: "hava", Count: 2},
		{Query: "kampanya", Normalized: "kampanya", Count: 1},
	}
	if diff := cmp.Diff(wantTop, report.TopFallbackInputs); diff != "" {
		t.Errorf("top inputs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"contact"}, report.UnmatchedIntents); diff != "" {
		t.Errorf("unmatched (-want +got):\n%s", diff)
	}
	wantTrend := []domain.DailyFallbacks{
		{Date: "2026-10-15", TotalMessages: 2, Fallbacks: 1, FallbackRate: 50},
		{Date: "2026-10-14", TotalMessages: 2, Fallbacks: 2, FallbackRate: 100},
	}
	if diff := cmp.Diff(wantTrend, report.Trend); diff != "" {
		t.Errorf("trend (-want +got):\n%s", diff)
	}
}

func TestIntentPerformance(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	repo := newTestRepository(t, now)
	ctx := context.Background()

	for _, row := range []domain.Interaction{
		interaction("fiyat", "pricing", domain.SourceDeterministicEngine, 10, now),
		interaction("fiyat ne kadar", "pricing", domain.SourceVerifiedLLM, 25, now),
		interaction("iletisim", "contact", domain.SourceDeterministicEngine, 10, now),
		interaction("hava", "", domain.SourceFallback, 0, now),
	} {
		if err := repo.Insert(ctx, row); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := repo.IntentPerformance(ctx, 30)
	if err != nil {
		t.Fatalf("IntentPerformance: %v", err)
	}
	want := []domain.IntentPerformance{
		{IntentID: "pricing", Hits: 2, AverageScore: 17.5, LLMAnswers: 1},
		{IntentID: "contact", Hits: 1, AverageScore: 10, LLMAnswers: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("performance (-want +got):\n%s", diff)
	}
}

type memoryStore struct {
	mu    sync.Mutex
	rows  []domain.Interaction
	fail  bool
	delay time.Duration
}

func (m *memoryStore) Insert(_ context.Context, in domain.Interaction) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.rows = append(m.rows, in)
	return nil
}

type memoryCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (c *memoryCounter) IncrementIntentHit(_ context.Context, day, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hits == nil {
		c.hits = map[string]int{}
	}
	c.hits[day+"/"+label]++
	return nil
}

func TestRecorderDrainsOnClose(t *testing.T) {
	store := &memoryStore{delay: time.Millisecond}
	counter := &memoryCounter{}
	rec := NewRecorder(store, counter, zap.NewNop())
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		rec.Record(interaction("fiyat", "pricing", domain.SourceDeterministicEngine, 10, at))
	}
	rec.Record(interaction("hava", "", domain.SourceFallback, 0, at))
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(store.rows) != 21 {
		t.Fatalf("rows = %d, want 21", len(store.rows))
	}
	if counter.hits["2026-10-15/pricing"] != 20 || counter.hits["2026-10-15/fallback"] != 1 {
		t.Fatalf("counter = %v", counter.hits)
	}

	rec.Record(interaction("late", "", domain.SourceFallback, 0, at))
	if len(store.rows) != 21 {
		t.Fatalf("record after Close was written")
	}
}

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	rec := NewRecorder(&memoryStore{fail: true}, nil, zap.NewNop())
	rec.Record(interaction("fiyat", "pricing", domain.SourceDeterministicEngine, 10, time.Now()))
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
