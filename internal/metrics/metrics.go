package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Escalation sources.
const (
	SourceKeyword   = "keyword"
	SourceResponder = "responder"
)

type Metrics struct {
	TurnsTotal       *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	FallbackFailures *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	ReplyDuration    prometheus.Histogram
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_turns_total",
			Help: "Total number of resolved customer turns by category",
		}, []string{"category"}),
		EscalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_escalations_total",
			Help: "Total number of hand-offs to a human agent",
		}, []string{"source"}),
		FallbackFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_fallback_failures_total",
			Help: "Total number of failed generative fallback calls",
		}, []string{"kind"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "support_active_sessions",
			Help: "Current number of open widget sessions",
		}),
		ReplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "support_reply_seconds",
			Help:    "Time spent producing a reply after the thinking delay",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// The helpers below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveTurn(category string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveEscalation(source string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveFallbackFailure(kind string) {
	if m == nil {
		return
	}
	m.FallbackFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveReply(d time.Duration) {
	if m == nil {
		return
	}
	m.ReplyDuration.Observe(d.Seconds())
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
