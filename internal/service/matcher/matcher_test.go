package matcher

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/domain"
)

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		ID: "snap-1",
		Intents: []domain.Intent{
			{
				ID:       "fiyat",
				Name:     "Fiyat Bilgisi",
				Priority: 8,
				Active:   true,
				Keywords: []domain.Keyword{
					{Text: "fiyat", Normalized: "fiyat", Weight: 10, Synonyms: []string{"ücret"}, Misspellings: []string{"fyat"}},
				},
				Response: domain.ResponseTemplate{
					Main:       "Paketlerimiz {price.basic.min} TL'den başlar.",
					Supporting: "Detay için {contact.phone}",
					Tone:       domain.ToneFriendly,
				},
			},
			{
				ID:       "hizmet",
				Name:     "Hizmetler",
				Priority: 5,
				Active:   true,
				Keywords: []domain.Keyword{
					{Text: "web sitesi", Normalized: "web sitesi", Weight: 10},
					{Text: "tasarım", Normalized: "tasarim", Weight: 15},
				},
				Response: domain.ResponseTemplate{Main: "{service.web}", Tone: domain.ToneProfessional},
			},
			{
				ID:       "pasif",
				Name:     "Pasif",
				Priority: 10,
				Active:   false,
				Keywords: []domain.Keyword{{Text: "fiyat", Normalized: "fiyat", Weight: 10}},
				Response: domain.ResponseTemplate{Main: "never"},
			},
		},
		Fallbacks: []domain.Fallback{
			{ID: "f1", Message: "Anlayamadım.", Tone: domain.ToneFriendly, Active: true},
			{ID: "f2", Message: "Tekrar dener misiniz?", Tone: domain.ToneFriendly, Active: true},
			{ID: "f3", Message: "Bizi arayın: {contact.phone}", Tone: domain.ToneFriendly, Active: true},
		},
		SiteData: domain.SiteData{
			Services: map[string]string{"web": "Kurumsal web sitesi tasarımı yapıyoruz."},
			Prices:   map[string]domain.PriceRange{"basic": {Min: "5000", Max: "8000"}},
			Contact:  map[string]string{"phone": "0212 555 00 00"},
		},
	}
}

func TestMatchEndToEnd(t *testing.T) {
	m := NewMatcher(zap.NewNop())
	got := m.Match("Fiyat ne kadar?", testSnapshot())

	if got.IsFallback {
		t.Fatalf("expected intent match, got fallback")
	}
	if got.IntentID != "fiyat" {
		t.Fatalf("intent = %q, want fiyat", got.IntentID)
	}
	if got.Message != "Paketlerimiz 5000 TL'den başlar." {
		t.Fatalf("message = %q", got.Message)
	}
	if got.SupportingMessage != "Detay için 0212 555 00 00" {
		t.Fatalf("supporting = %q", got.SupportingMessage)
	}
	if got.Score != 10 {
		t.Fatalf("score = %v, want 10", got.Score)
	}
}

func TestMatchDeterministic(t *testing.T) {
	m := NewMatcher(zap.NewNop())
	snap := testSnapshot()
	first := m.Match("web sitesi tasarım fiyatı", snap)
	for i := 0; i < 100; i++ {
		got := m.Match("web sitesi tasarım fiyatı", snap)
		if got != first {
			t.Fatalf("iteration %d: %+v != %+v", i, got, first)
		}
	}
}

func TestScoringIsAdditive(t *testing.T) {
	intent := testSnapshot().Intents[1]
	if got := ScoreIntent("web sitesi tasarim", intent); got != 25 {
		t.Fatalf("score = %v, want 25", got)
	}
}

func TestSynonymAndMisspellingDiscounts(t *testing.T) {
	intent := testSnapshot().Intents[0]

	if got := ScoreIntent("ucret ne kadar", intent); got != 8 {
		t.Fatalf("synonym score = %v, want 8", got)
	}
	if got := ScoreIntent("fyat ne kadar", intent); got != 6 {
		t.Fatalf("misspelling score = %v, want 6", got)
	}
	if got := ScoreIntent("merhaba", intent); got != 0 {
		t.Fatalf("unrelated score = %v, want 0", got)
	}
}

func TestMisspellingCheckedWhenSynonymsDoNotMatch(t *testing.T) {
	kw := domain.Keyword{Text: "iletişim", Weight: 10, Synonyms: []string{"ulaşım"}, Misspellings: []string{"iletsim"}}
	hit, ok := scoreKeyword("iletsim bilgisi", kw)
	if !ok || hit.MatchType != domain.MatchTypeTypo {
		t.Fatalf("expected typo hit, got %+v (ok=%v)", hit, ok)
	}
}

func TestPriorityOverridesScore(t *testing.T) {
	snap := &domain.Snapshot{
		Intents: []domain.Intent{
			{ID: "low", Priority: 3, Active: true, Keywords: []domain.Keyword{
				{Text: "paket", Weight: 30},
			}, Response: domain.ResponseTemplate{Main: "low"}},
			{ID: "high", Priority: 9, Active: true, Keywords: []domain.Keyword{
				{Text: "paket", Weight: 10},
			}, Response: domain.ResponseTemplate{Main: "high"}},
		},
	}
	got := NewMatcher(nil).Match("paket", snap)
	if got.IntentID != "high" {
		t.Fatalf("intent = %q, want high", got.IntentID)
	}
}

func TestTiesKeepSnapshotOrder(t *testing.T) {
	snap := &domain.Snapshot{
		Intents: []domain.Intent{
			{ID: "first", Priority: 5, Active: true, Keywords: []domain.Keyword{{Text: "destek", Weight: 10}}, Response: domain.ResponseTemplate{Main: "1"}},
			{ID: "second", Priority: 5, Active: true, Keywords: []domain.Keyword{{Text: "destek", Weight: 10}}, Response: domain.ResponseTemplate{Main: "2"}},
		},
	}
	if got := NewMatcher(nil).Match("destek", snap); got.IntentID != "first" {
		t.Fatalf("intent = %q, want first", got.IntentID)
	}
}

func TestInactiveIntentIgnored(t *testing.T) {
	snap := testSnapshot()
	got := NewMatcher(nil).Match("fiyat", snap)
	if got.IntentID == "pasif" {
		t.Fatalf("inactive intent selected")
	}
}

func TestFallbackRoundRobin(t *testing.T) {
	m := NewMatcher(zap.NewNop())
	snap := testSnapshot()

	want := []string{"Anlayamadım.", "Tekrar dener misiniz?", "Bizi arayın: 0212 555 00 00", "Anlayamadım."}
	for i, w := range want {
		got := m.Match("merhaba nasılsınız", snap)
		if !got.IsFallback {
			t.Fatalf("call %d: expected fallback", i)
		}
		if got.Message != w {
			t.Fatalf("call %d: message = %q, want %q", i, got.Message, w)
		}
		if got.Score != 0 || got.IntentID != "" {
			t.Fatalf("call %d: fallback carries intent data: %+v", i, got)
		}
	}
}

func TestFallbackDefaultWhenNoneActive(t *testing.T) {
	snap := &domain.Snapshot{Fallbacks: []domain.Fallback{{ID: "off", Message: "off", Active: false}}}
	got := NewMatcher(nil).Match("???", snap)
	if got.Message != "Üzgünüm, size yardımcı olamıyorum." || got.Tone != domain.ToneFriendly {
		t.Fatalf("default fallback = %+v", got)
	}
}

func TestRotatorConcurrentSelectionsAreBalanced(t *testing.T) {
	r := &FallbackRotator{}
	fallbacks := []domain.Fallback{
		{ID: "a", Active: true},
		{ID: "b", Active: true},
	}

	var (
		mu     sync.Mutex
		counts = map[string]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fb := r.Next(fallbacks)
			mu.Lock()
			counts[fb.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counts["a"] != 50 || counts["b"] != 50 {
		t.Fatalf("unbalanced rotation: %v", counts)
	}
}

func TestTestMatchDiagnostics(t *testing.T) {
	m := NewMatcher(nil)
	snap := testSnapshot()
	diag := m.TestMatch("FİYAT ve web sitesi", snap)

	if diag.NormalizedInput != "fiyat ve web sitesi" {
		t.Fatalf("normalized = %q", diag.NormalizedInput)
	}
	if diag.SelectedIntent != "fiyat" {
		t.Fatalf("selected = %q, want fiyat", diag.SelectedIntent)
	}
	if len(diag.AllScores) != 2 {
		t.Fatalf("all scores should cover active intents only, got %d", len(diag.AllScores))
	}
	if len(diag.TopCandidates) != 2 {
		t.Fatalf("top candidates = %d, want 2", len(diag.TopCandidates))
	}
	if diag.TopCandidates[0].IntentID != "fiyat" || diag.TopCandidates[1].IntentID != "hizmet" {
		t.Fatalf("candidate order = %s, %s", diag.TopCandidates[0].IntentID, diag.TopCandidates[1].IntentID)
	}
	hits := diag.TopCandidates[0].Hits
	if len(hits) != 1 || hits[0].MatchType != domain.MatchTypeExact || hits[0].ScoreAdded != 10 {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestTestMatchDoesNotAdvanceRotation(t *testing.T) {
	m := NewMatcher(nil)
	snap := testSnapshot()
	_ = m.TestMatch("hiçbir şey", snap)
	_ = m.TestMatch("hiçbir şey", snap)

	if got := m.Match("hiçbir şey", snap); got.Message != "Anlayamadım." {
		t.Fatalf("rotation advanced by TestMatch: %q", got.Message)
	}
}

func TestCheckDeterminism(t *testing.T) {
	report := NewMatcher(nil).CheckDeterminism("tasarım fiyatı", testSnapshot(), 50)
	if !report.Stable || len(report.Divergences) != 0 {
		t.Fatalf("expected stable report, got %+v", report)
	}
	if report.First.IntentID != "fiyat" {
		t.Fatalf("first intent = %q", report.First.IntentID)
	}
}
