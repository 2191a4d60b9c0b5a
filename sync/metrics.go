// ABOUTME: Prometheus counters for event creation, provider pushes, deletes and token refreshes
// ABOUTME: All methods are safe on a nil *Metrics so the engine can run without a registry
package sync

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailed  = "failed"
)

// Metrics groups the engine's counters.
type Metrics struct {
	eventsCreated prometheus.Counter
	providerPush  *prometheus.CounterVec
	providerDel   *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	syncDuration  prometheus.Summary
}

// NewMetrics creates the engine counters and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "closingcal",
			Name:      "events_created_total",
			Help:      "Local calendar events created from transaction milestones",
		}),
		providerPush: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "closingcal",
			Name:      "provider_push_total",
			Help:      "Calendar provider event creations by result",
		}, []string{"result"}),
		providerDel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "closingcal",
			Name:      "provider_delete_total",
			Help:      "Calendar provider event deletions by result",
		}, []string{"result"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "closingcal",
			Name:      "token_refresh_total",
			Help:      "OAuth access token refreshes by result",
		}, []string{"result"}),
		syncDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "closingcal",
			Name:      "sync_duration_seconds",
			Help:      "Time spent in a single transaction sync",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.eventsCreated, m.providerPush, m.providerDel, m.tokenRefresh, m.syncDuration)
	}

	return m
}

func resultLabel(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultFailed
}

func (m *Metrics) EventsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsCreated.Add(float64(n))
}

func (m *Metrics) ProviderPush(ok bool) {
	if m == nil {
		return
	}
	m.providerPush.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) ProviderDelete(ok bool) {
	if m == nil {
		return
	}
	m.providerDel.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) TokenRefresh(ok bool) {
	if m == nil {
		return
	}
	m.tokenRefresh.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) ObserveSync(d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
}

// Handler serves the metrics gathered by g on /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}
