package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEvent("APP_USAGE", "CRITICAL", "persisted")
	m.ObserveEvent("APP_USAGE", "CRITICAL", "persisted")
	m.ObserveDeadLettered("HIGH")
	m.ObserveGatewayCall("embed", 0.1, errors.New("down"))
	m.SetQueueDepth("security:high", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("APP_USAGE", "CRITICAL", "persisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLetteredTotal.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues("embed", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("security:high")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEvent("ALERT", "NORMAL", "queued")
		m.ObserveDrained("HIGH", 3)
		m.SetWALActive(true)
		m.ObserveAPIKeyCache(false)
	})
}
