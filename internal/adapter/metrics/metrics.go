package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "worksync"

// Metrics holds all Prometheus metrics for the service. Every method is
// safe on a nil receiver so components can run without instrumentation.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	BytesTotal         prometheus.Counter
	DrainedTotal       *prometheus.CounterVec
	RedeliveredTotal   *prometheus.CounterVec
	DeadLetteredTotal  *prometheus.CounterVec
	QueueDepth         *prometheus.GaugeVec
	GatewayCalls       *prometheus.CounterVec
	GatewayLatency     *prometheus.HistogramVec
	SummariesTotal     *prometheus.CounterVec
	VectorsStored      *prometheus.CounterVec
	QueriesTotal       *prometheus.CounterVec
	AggregationRecords prometheus.Counter
	WALActive          prometheus.Gauge
	APIKeyCacheHits    prometheus.Counter
	APIKeyCacheMisses  prometheus.Counter
}

// New initializes the metrics and registers them with reg. Tests pass a
// fresh prometheus.NewRegistry() to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of submitted events by type, tier and status.",
		}, []string{"event_type", "tier", "status"}), // status: persisted, queued, rejected, failed
		BytesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of bytes received on the HTTP ingest surface.",
		}),
		DrainedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_drained_total",
			Help:      "Total number of events persisted by tier drains.",
		}, []string{"tier"}),
		RedeliveredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_redelivered_total",
			Help:      "Total number of events requeued after a failed drain.",
		}, []string{"tier"}),
		DeadLetteredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_dead_lettered_total",
			Help:      "Total number of events dropped after exhausting redeliveries.",
		}, []string{"tier"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of events waiting in a tier queue.",
		}, []string{"queue"}),
		GatewayCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total number of language model gateway calls by operation and status.",
		}, []string{"operation", "status"}),
		GatewayLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Latency of language model gateway calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"operation"}),
		SummariesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "generated_total",
			Help:      "Total number of summaries by source (model or fallback).",
		}, []string{"source"}),
		VectorsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "vectors_stored_total",
			Help:      "Total number of stored summary vectors by embedding outcome.",
		}, []string{"embedding"}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "queries_total",
			Help:      "Total number of chatbot queries by query type and outcome.",
		}, []string{"query_type", "outcome"}),
		AggregationRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "records_written_total",
			Help:      "Total number of aggregation records upserted.",
		}),
		WALActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "wal_active_gauge",
			Help:      "Indicates if the Write-Ahead Log is currently active (1 for active, 0 for inactive).",
		}),
		APIKeyCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_hits_total",
			Help:      "Total number of API key cache hits.",
		}),
		APIKeyCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_misses_total",
			Help:      "Total number of API key cache misses.",
		}),
	}
}

func (m *Metrics) ObserveEvent(eventType, tier, status string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType, tier, status).Inc()
}

func (m *Metrics) ObserveBytes(n int) {
	if m == nil {
		return
	}
	m.BytesTotal.Add(float64(n))
}

func (m *Metrics) ObserveDrained(tier string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DrainedTotal.WithLabelValues(tier).Add(float64(n))
}

func (m *Metrics) ObserveRedelivered(tier string) {
	if m == nil {
		return
	}
	m.RedeliveredTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveDeadLettered(tier string) {
	if m == nil {
		return
	}
	m.DeadLetteredTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) SetQueueDepth(queue string, depth int64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) ObserveGatewayCall(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GatewayCalls.WithLabelValues(operation, status).Inc()
	m.GatewayLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) ObserveSummary(source string) {
	if m == nil {
		return
	}
	m.SummariesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveVectorStored(embedded bool) {
	if m == nil {
		return
	}
	label := "present"
	if !embedded {
		label = "empty"
	}
	m.VectorsStored.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveQuery(queryType, outcome string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(queryType, outcome).Inc()
}

func (m *Metrics) ObserveAggregationRecords(n int) {
	if m == nil {
		return
	}
	m.AggregationRecords.Add(float64(n))
}

func (m *Metrics) SetWALActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.WALActive.Set(1)
	} else {
		m.WALActive.Set(0)
	}
}

func (m *Metrics) ObserveAPIKeyCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.APIKeyCacheHits.Inc()
	} else {
		m.APIKeyCacheMisses.Inc()
	}
}
