package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTurn("greeting")
	m.ObserveTurn("greeting")
	m.ObserveEscalation(SourceKeyword)
	m.ObserveFallbackFailure("quota_exceeded")
	m.ObserveReply(150 * time.Millisecond)
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("greeting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EscalationsTotal.WithLabelValues(SourceKeyword)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackFailures.WithLabelValues("quota_exceeded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("default")
		m.ObserveEscalation(SourceResponder)
		m.ObserveFallbackFailure("unavailable")
		m.ObserveReply(time.Second)
		m.SetActiveSessions(1)
	})
}
