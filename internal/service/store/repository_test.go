package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/service/database"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Dialect: database.DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "store.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewRepository(db, zap.NewNop())
}

func sampleContent() *domain.Content {
	return &domain.Content{
		Intents: []domain.Intent{
			{
				ID: "pricing", Name: "Fiyatlar", Priority: 5, Active: true,
				Keywords: []domain.Keyword{
					{Text: "Fiyat", Weight: 10, Synonyms: []string{"Ücret"}, Misspellings: []string{"fiyt"}},
					{Text: "ne kadar", Weight: 8},
				},
				Response: domain.ResponseTemplate{Main: "Paketler {price.basic.min} TL'den başlar.", Tone: domain.ToneFriendly},
				Data: map[string]any{
					"packages": []any{map[string]any{"name": "Basic", "price": "5.000 TL"}},
				},
			},
			{
				ID: "contact", Name: "İletişim", Priority: 3, Active: false,
				Keywords: []domain.Keyword{{Text: "iletişim", Weight: 10}},
				Response: domain.ResponseTemplate{Main: "Bize {contact.email} adresinden ulaşın.", Tone: domain.ToneProfessional},
			},
		},
		Fallbacks: []domain.Fallback{
			{ID: "fb1", Message: "Anlayamadım.", Tone: domain.ToneFriendly, Active: true},
			{ID: "fb2", Message: "Tekrar dener misiniz?", Tone: domain.ToneNeutral, Active: false},
		},
		SiteData: domain.SiteData{
			Services: map[string]string{"web": "Web tasarım"},
			Prices:   map[string]domain.PriceRange{"basic": {Min: "5.000", Max: "10.000"}},
			Contact:  map[string]string{"email": "info@example.com"},
		},
		Settings: domain.Settings{
			AssistantName: "Çırak",
			ThemeColor:    "#ff6600",
			WidgetEnabled: true,
			Menu:          domain.PresetMenu{Message: "Merhaba!", Options: []string{"Fiyatlar", "İletişim"}},
		},
	}
}

func TestImportAndLoad(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.ImportContent(ctx, sampleContent()); err != nil {
		t.Fatalf("ImportContent: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Intents) != 2 || got.Intents[0].ID != "pricing" || got.Intents[1].ID != "contact" {
		t.Fatalf("intent order = %+v", got.Intents)
	}
	pricing := got.Intents[0]
	if len(pricing.Keywords) != 2 {
		t.Fatalf("keywords = %+v", pricing.Keywords)
	}
	if pricing.Keywords[0].Normalized != "fiyat" {
		t.Errorf("normalized = %q, want fiyat", pricing.Keywords[0].Normalized)
	}
	if diff := cmp.Diff([]string{"Ücret"}, pricing.Keywords[0].Synonyms); diff != "" {
		t.Errorf("synonyms mismatch (-want +got):\n%s", diff)
	}
	if pkgs := pricing.ContextData().Packages; len(pkgs) != 1 || pkgs[0].Price != "5.000 TL" {
		t.Errorf("context data = %+v", pkgs)
	}
	if got.Intents[1].Active {
		t.Errorf("contact intent should stay inactive")
	}

	if diff := cmp.Diff(sampleContent().SiteData, got.SiteData); diff != "" {
		t.Errorf("site data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(sampleContent().Settings, got.Settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if len(got.Fallbacks) != 2 || got.Fallbacks[1].Active {
		t.Errorf("fallbacks = %+v", got.Fallbacks)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := repo.ImportContent(ctx, sampleContent()); err != nil {
			t.Fatalf("import %d: %v", i, err)
		}
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := len(got.Intents[0].Keywords); n != 2 {
		t.Fatalf("keywords duplicated on re-import: %d", n)
	}
}

func TestAddKeywordNormalizesAtWriteTime(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if err := repo.ImportContent(ctx, sampleContent()); err != nil {
		t.Fatalf("import: %v", err)
	}

	kw, err := repo.AddKeyword(ctx, "pricing", domain.Keyword{Text: "  ÜCRETLER?! "})
	if err != nil {
		t.Fatalf("AddKeyword: %v", err)
	}
	if kw.Normalized != "ucretler" || kw.Weight != 10 || kw.ID == 0 {
		t.Fatalf("keyword = %+v", kw)
	}

	if err := repo.DeleteKeyword(ctx, kw.ID); err != nil {
		t.Fatalf("DeleteKeyword: %v", err)
	}
	var notFound *apperrors.NotFoundError
	if err := repo.DeleteKeyword(ctx, kw.ID); !errors.As(err, &notFound) {
		t.Fatalf("second delete err = %v, want NotFoundError", err)
	}
}

func TestAddKeywordRejectsBadInput(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if err := repo.ImportContent(ctx, sampleContent()); err != nil {
		t.Fatalf("import: %v", err)
	}

	var validation *apperrors.ValidationError
	if _, err := repo.AddKeyword(ctx, "pricing", domain.Keyword{Text: "?!"}); !errors.As(err, &validation) {
		t.Errorf("punctuation-only keyword err = %v, want ValidationError", err)
	}
	var notFound *apperrors.NotFoundError
	if _, err := repo.AddKeyword(ctx, "missing", domain.Keyword{Text: "fiyat"}); !errors.As(err, &notFound) {
		t.Errorf("unknown intent err = %v, want NotFoundError", err)
	}
}

func TestSetIntentState(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if err := repo.ImportContent(ctx, sampleContent()); err != nil {
		t.Fatalf("import: %v", err)
	}

	active, priority := true, 9
	if err := repo.SetIntentState(ctx, "contact", &active, &priority); err != nil {
		t.Fatalf("SetIntentState: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c := got.Intents[1]; !c.Active || c.Priority != 9 {
		t.Fatalf("contact = active %v priority %d", c.Active, c.Priority)
	}

	var notFound *apperrors.NotFoundError
	if err := repo.SetIntentState(ctx, "missing", &active, nil); !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestSnapshotHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		meta := domain.SnapshotMetadata{
			ID:          "snap-" + string(rune('0'+i)),
			Sequence:    int64(i),
			Fingerprint: "fp",
			GeneratedAt: base.Add(time.Duration(i) * time.Minute),
			IntentCount: i,
		}
		if err := repo.RecordSnapshot(ctx, meta); err != nil {
			t.Fatalf("RecordSnapshot: %v", err)
		}
	}

	history, err := repo.SnapshotHistory(ctx, 2)
	if err != nil {
		t.Fatalf("SnapshotHistory: %v", err)
	}
	if len(history) != 2 || history[0].ID != "snap-3" || history[1].ID != "snap-2" {
		t.Fatalf("history = %+v", history)
	}
	if !history[0].GeneratedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("generatedAt = %v", history[0].GeneratedAt)
	}
}
