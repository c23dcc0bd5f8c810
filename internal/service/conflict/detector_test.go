package conflict

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/domain"
)

func kw(text string) domain.Keyword {
	return domain.Keyword{Text: text, Weight: 10}
}

func TestDetectShadowing(t *testing.T) {
	snap := &domain.Snapshot{Intents: []domain.Intent{
		{ID: "a", Name: "Fiyat", Priority: 10, Active: true, Keywords: []domain.Keyword{kw("fiyat")}},
		{ID: "b", Name: "Fiyat Listesi", Priority: 5, Active: true, Keywords: []domain.Keyword{kw("fiyat listesi")}},
	}}

	got := NewDetector(zap.NewNop()).DetectConflicts(snap)
	want := []domain.Conflict{{
		Type:        domain.ConflictAmbiguousInput,
		Severity:    domain.SeverityWarning,
		Key:         "fiyat",
		ShadowedKey: "fiyat listesi",
		IntentIDs:   []string{"a", "b"},
		IntentNames: []string{"Fiyat", "Fiyat Listesi"},
		Message:     `Input "fiyat listesi" will match higher priority intent "Fiyat" (via key "fiyat") instead of "Fiyat Listesi".`,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("conflicts mismatch (-want +got):\n%s", diff)
	}
}

func TestNoShadowingWhenLongerKeyHasHigherOrEqualPriority(t *testing.T) {
	for _, priority := range []int{10, 12} {
		snap := &domain.Snapshot{Intents: []domain.Intent{
			{ID: "a", Name: "Fiyat", Priority: 10, Active: true, Keywords: []domain.Keyword{kw("fiyat")}},
			{ID: "b", Name: "Liste", Priority: priority, Active: true, Keywords: []domain.Keyword{kw("fiyat listesi")}},
		}}
		if got := NewDetector(nil).DetectConflicts(snap); len(got) != 0 {
			t.Fatalf("priority %d: unexpected conflicts %+v", priority, got)
		}
	}
}

func TestDetectDuplicateKey(t *testing.T) {
	snap := &domain.Snapshot{Intents: []domain.Intent{
		{ID: "contact", Name: "İletişim", Priority: 5, Active: true, Keywords: []domain.Keyword{kw("iletişim")}},
		{ID: "support", Name: "Destek", Priority: 5, Active: true, Keywords: []domain.Keyword{kw("İLETİŞİM"), kw("destek")}},
	}}

	got := NewDetector(nil).DetectConflicts(snap)
	if len(got) != 1 {
		t.Fatalf("conflicts = %d, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.Type != domain.ConflictKeyDuplication || c.Severity != domain.SeverityCritical {
		t.Fatalf("conflict = %+v", c)
	}
	if c.Key != "iletisim" {
		t.Fatalf("key = %q, want iletisim", c.Key)
	}
	if diff := cmp.Diff([]string{"contact", "support"}, c.IntentIDs); diff != "" {
		t.Fatalf("intent ids (-want +got):\n%s", diff)
	}
}

func TestDuplicateWithinOneIntentIsNotAConflict(t *testing.T) {
	snap := &domain.Snapshot{Intents: []domain.Intent{
		{ID: "a", Name: "A", Priority: 5, Active: true, Keywords: []domain.Keyword{kw("paket"), kw("Paket")}},
	}}
	if got := NewDetector(nil).DetectConflicts(snap); len(got) != 0 {
		t.Fatalf("unexpected conflicts %+v", got)
	}
}

func TestInactiveIntentsExcluded(t *testing.T) {
	snap := &domain.Snapshot{Intents: []domain.Intent{
		{ID: "a", Name: "A", Priority: 5, Active: true, Keywords: []domain.Keyword{kw("paket")}},
		{ID: "b", Name: "B", Priority: 5, Active: false, Keywords: []domain.Keyword{kw("paket")}},
	}}
	if got := NewDetector(nil).DetectConflicts(snap); len(got) != 0 {
		t.Fatalf("unexpected conflicts %+v", got)
	}
}

func TestValidateNewKey(t *testing.T) {
	snap := &domain.Snapshot{Intents: []domain.Intent{
		{ID: "pricing", Name: "Fiyat", Priority: 8, Active: true, Keywords: []domain.Keyword{kw("ücret")}},
		{ID: "services", Name: "Hizmet", Priority: 5, Active: true, Keywords: []domain.Keyword{kw("hizmet")}},
	}}
	d := NewDetector(nil)

	c := d.ValidateNewKey("ÜCRET", "services", snap)
	if c == nil {
		t.Fatalf("expected duplication conflict")
	}
	if c.Key != "ucret" || c.IntentIDs[0] != "pricing" || c.IntentIDs[1] != "services" {
		t.Fatalf("conflict = %+v", c)
	}

	if c := d.ValidateNewKey("ücret", "pricing", snap); c != nil {
		t.Fatalf("own key should not conflict: %+v", c)
	}
	if c := d.ValidateNewKey("fiyat listesi", "services", snap); c != nil {
		t.Fatalf("new key should be accepted: %+v", c)
	}
}

func TestAnalyzeReportsSynonymOverlap(t *testing.T) {
	snap := &domain.Snapshot{Intents: []domain.Intent{
		{ID: "pricing", Name: "Fiyat", Priority: 8, Active: true, Keywords: []domain.Keyword{
			{Text: "fiyat", Weight: 10, Synonyms: []string{"ücret"}},
		}},
		{ID: "fees", Name: "Ücretler", Priority: 5, Active: true, Keywords: []domain.Keyword{kw("ücret")}},
	}}

	report := NewDetector(nil).Analyze(snap)
	var overlap *domain.Conflict
	for i := range report.Conflicts {
		if report.Conflicts[i].Type == domain.ConflictSynonymOverlap {
			overlap = &report.Conflicts[i]
		}
	}
	if overlap == nil {
		t.Fatalf("expected synonym overlap, got %+v", report.Conflicts)
	}
	if diff := cmp.Diff([]string{"fees", "pricing"}, overlap.IntentIDs); diff != "" {
		t.Fatalf("overlap intents (-want +got):\n%s", diff)
	}
	if report.Stats.TotalIntents != 2 || report.Stats.TotalKeywords != 2 || report.Stats.Low != 1 {
		t.Fatalf("stats = %+v", report.Stats)
	}
}

func TestQualityScore(t *testing.T) {
	intent := domain.Intent{ID: "pricing", Keywords: []domain.Keyword{
		{Text: "fiyat", Weight: 10, Synonyms: []string{"ücret"}, Misspellings: []string{"fyat"}},
		{Text: "paket", Weight: 10},
	}}
	q := QualityScore(intent)
	// keywords 10, synonyms 15, weight 20, misspellings 10
	if q.Score != 55 {
		t.Fatalf("score = %d, want 55 (%+v)", q.Score, q.Breakdown)
	}
	if empty := QualityScore(domain.Intent{ID: "empty"}); empty.Score != 0 {
		t.Fatalf("empty intent score = %d", empty.Score)
	}
}

func TestVerifyNormalization(t *testing.T) {
	snap := &domain.Snapshot{Intents: []domain.Intent{
		{ID: "a", Keywords: []domain.Keyword{
			{Text: "Fiyat?", Normalized: "fiyat"},
			{Text: "İletişim", Normalized: "iletişim"},
		}},
	}}
	drifts := VerifyNormalization(snap)
	if len(drifts) != 1 || drifts[0].Expected != "iletisim" {
		t.Fatalf("drifts = %+v", drifts)
	}
}
