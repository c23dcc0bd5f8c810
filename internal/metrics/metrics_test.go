package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kapu/cirak-widget-go/internal/domain"
)

func TestObserveChat(t *testing.T) {
	m := New("cirak")
	m.ObserveChat(domain.SourceDeterministicEngine, "pricing", 2*time.Millisecond)
	m.ObserveChat(domain.SourceDeterministicEngine, "pricing", 3*time.Millisecond)
	m.ObserveChat(domain.SourceFallback, "", time.Millisecond)

	if got := testutil.ToFloat64(m.chatResponses.WithLabelValues("deterministic_engine", "pricing")); got != 2 {
		t.Fatalf("pricing responses = %v", got)
	}
	if got := testutil.ToFloat64(m.chatResponses.WithLabelValues("fallback", "")); got != 1 {
		t.Fatalf("fallback responses = %v", got)
	}
}

func TestObserveSnapshot(t *testing.T) {
	m := New("cirak")
	m.ObserveSnapshot(domain.SnapshotMetadata{Sequence: 4, IntentCount: 12})

	if got := testutil.ToFloat64(m.snapshotSeq); got != 4 {
		t.Errorf("sequence = %v", got)
	}
	if got := testutil.ToFloat64(m.snapshotIntents); got != 12 {
		t.Errorf("intents = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveChat(domain.SourceFallback, "", time.Millisecond)
	m.ObserveGuardRejection(domain.GuardRuleUnverifiedNumber)
	m.ObserveCache(true)
	m.WebSocketOpened()
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("cirak")
	m.ObserveGuardRejection(domain.GuardRuleForbiddenPhrase)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `cirak_guard_rejections_total{rule="forbidden_phrase"} 1`) {
		t.Fatalf("metrics output missing guard counter:\n%s", rec.Body.String())
	}
}
