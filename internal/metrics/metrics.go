// Package metrics holds the Prometheus instrumentation for the enumeration
// pipeline and path engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds all collectors for one running pipeline instance.
type Registry struct {
	RecordsStoredTotal       *prometheus.CounterVec
	CategoriesRunning        prometheus.Gauge
	SpillBytesWrittenTotal   *prometheus.CounterVec
	BulkLoadBatchDuration    *prometheus.HistogramVec
	PathQueryDuration        *prometheus.HistogramVec
}

// New registers a Registry against the global Prometheus registerer.
func New(serviceName string) *Registry {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers a Registry against a caller-supplied registerer,
// so it composes with an existing /metrics handler.
func NewWithRegistry(serviceName string, reg prometheus.Registerer) *Registry {
	m := &Registry{
		RecordsStoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adtrails",
			Name:      "records_stored_total",
			Help:      "Directory records stored by category.",
			ConstLabels: prometheus.Labels{
				"service": serviceName,
			},
		}, []string{"category"}),
		CategoriesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adtrails",
			Name:      "categories_running",
			Help:      "Number of enumeration categories currently in flight.",
			ConstLabels: prometheus.Labels{
				"service": serviceName,
			},
		}),
		SpillBytesWrittenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adtrails",
			Name:      "spill_bytes_written_total",
			Help:      "Bytes written to spill files, by kind (sd|token).",
			ConstLabels: prometheus.Labels{
				"service": serviceName,
			},
		}, []string{"kind"}),
		BulkLoadBatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adtrails",
			Name:      "bulk_load_batch_duration_seconds",
			Help:      "Duration of one bulk-load commit batch, by spill kind.",
			Buckets:   prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{
				"service": serviceName,
			},
		}, []string{"kind"}),
		PathQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adtrails",
			Name:      "path_query_duration_seconds",
			Help:      "Duration of a path-engine query, by operation.",
			Buckets:   prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{
				"service": serviceName,
			},
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{
		m.RecordsStoredTotal, m.CategoriesRunning, m.SpillBytesWrittenTotal,
		m.BulkLoadBatchDuration, m.PathQueryDuration,
	} {
		_ = reg.Register(c)
	}
	return m
}
