package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes used as the "outcome" label.
const (
	outcomeAnswered = "answered"
	outcomeDegraded = "degraded"
	outcomeBusy     = "busy"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

type metrics struct {
	registry     *prometheus.Registry
	queries      *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
	documents    *prometheus.CounterVec
}

// newMetrics registers the server's collectors on a registry of its own so
// several servers can coexist in one process.
func newMetrics(engine Engine) *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &metrics{
		registry: reg,
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_queries_total",
			Help: "Total number of queries by outcome",
		}, []string{"outcome"}),
		queryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dossier_query_duration_seconds",
			Help:    "Time spent answering queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_ingested_documents_total",
			Help: "Total number of ingested payloads by result",
		}, []string{"result"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dossier_index_entries",
		Help: "Number of entries in the vector index",
	}, func() float64 {
		return float64(engine.Stats().Count)
	})

	return m
}

func (m *metrics) observeQuery(outcome string, seconds float64) {
	m.queries.WithLabelValues(outcome).Inc()
	m.queryLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *metrics) observeIngest(accepted, rejected int) {
	m.documents.WithLabelValues("accepted").Add(float64(accepted))
	m.documents.WithLabelValues("rejected").Add(float64(rejected))
}
