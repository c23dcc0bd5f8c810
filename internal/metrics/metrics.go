package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kapu/cirak-widget-go/internal/domain"
)

// Metrics owns a private registry. All methods are safe on a nil receiver so callers can
// run with metrics disabled.
type Metrics struct {
	registry *prometheus.Registry

	chatResponses   *prometheus.CounterVec
	chatLatency     *prometheus.HistogramVec
	guardRejections *prometheus.CounterVec
	llmRequests     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	snapshotSwaps   prometheus.Counter
	snapshotErrors  prometheus.Counter
	snapshotSeq     prometheus.Gauge
	snapshotIntents prometheus.Gauge
	wsConnections   prometheus.Gauge
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		chatResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "responses_total",
			Help:      "Chat responses by source and intent",
		}, []string{"source", "intent"}),
		chatLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "Time to answer a chat message",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.25, 1, 2.5, 5, 15},
		}, []string{"source"}),
		guardRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "rejections_total",
			Help:      "LLM answers rejected by the response guard, by rule",
		}, []string{"rule"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Completion requests by provider and outcome",
		}, []string{"provider", "outcome"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Verified response cache lookups",
		}, []string{"result"}),
		snapshotSwaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "swaps_total",
			Help:      "Installed snapshots",
		}),
		snapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "build_errors_total",
			Help:      "Failed snapshot builds",
		}),
		snapshotSeq: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "sequence",
			Help:      "Sequence number of the current snapshot",
		}),
		snapshotIntents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "intents",
			Help:      "Intents in the current snapshot",
		}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open chat websocket connections",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveChat(source domain.Source, intentID string, latency time.Duration) {
	if m == nil {
		return
	}
	m.chatResponses.WithLabelValues(string(source), intentID).Inc()
	m.chatLatency.WithLabelValues(string(source)).Observe(latency.Seconds())
}

func (m *Metrics) ObserveGuardRejection(rule domain.GuardRule) {
	if m == nil {
		return
	}
	m.guardRejections.WithLabelValues(string(rule)).Inc()
}

// ObserveLLM records a completion outcome: "ok", "error" or "timeout".
func (m *Metrics) ObserveLLM(provider, outcome string) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSnapshot(meta domain.SnapshotMetadata) {
	if m == nil {
		return
	}
	m.snapshotSwaps.Inc()
	m.snapshotSeq.Set(float64(meta.Sequence))
	m.snapshotIntents.Set(float64(meta.IntentCount))
}

func (m *Metrics) ObserveSnapshotError() {
	if m == nil {
		return
	}
	m.snapshotErrors.Inc()
}

func (m *Metrics) WebSocketOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WebSocketClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}
