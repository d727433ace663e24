package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "db_connector"

// Metrics holds the connector's prometheus collectors
type Metrics struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	RowsProcessed   *prometheus.CounterVec
	RowsSkipped     *prometheus.CounterVec
	DecodeFailures  *prometheus.CounterVec
	ManifestsServed *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Archive queries by key kind and outcome.",
		}, []string{"archive", "key_kind", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent executing an archive query and aggregating its rows.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"archive", "key_kind"}),
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Result rows folded into the patient hierarchy.",
		}, []string{"archive"}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Result rows dropped for missing identifiers.",
		}, []string{"archive"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Column values that could not be parsed.",
		}, []string{"archive", "field"}),
		ManifestsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifests_served_total",
			Help:      "Manifests rendered by format.",
		}, []string{"archive", "format"}),
	}

	for _, c := range []prometheus.Collector{
		m.QueriesTotal,
		m.QueryDuration,
		m.RowsProcessed,
		m.RowsSkipped,
		m.DecodeFailures,
		m.ManifestsServed,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RowProcessed implements query.Observer
func (m *Metrics) RowProcessed(archive string) {
	m.RowsProcessed.WithLabelValues(archive).Inc()
}

// RowSkipped implements query.Observer
func (m *Metrics) RowSkipped(archive string) {
	m.RowsSkipped.WithLabelValues(archive).Inc()
}

// DecodeFailed implements query.Observer
func (m *Metrics) DecodeFailed(archive, field string) {
	m.DecodeFailures.WithLabelValues(archive, field).Inc()
}

// QueryFinished implements query.Observer
func (m *Metrics) QueryFinished(archive, kind, status string, elapsed time.Duration) {
	m.QueriesTotal.WithLabelValues(archive, kind, status).Inc()
	m.QueryDuration.WithLabelValues(archive, kind).Observe(elapsed.Seconds())
}

// ManifestServed counts a rendered manifest
func (m *Metrics) ManifestServed(archive, format string) {
	m.ManifestsServed.WithLabelValues(archive, format).Inc()
}
