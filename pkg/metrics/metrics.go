// Package metrics holds the Prometheus collectors of the query API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the service, registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Request outcomes
	ServerErrors      prometheus.Counter
	ValidationErrors  prometheus.Counter
	SuccessfulQueries *prometheus.CounterVec
	FailedQueries     *prometheus.CounterVec
	RowsReceived      prometheus.Counter
	QueryDuration     *prometheus.HistogramVec

	// Cache
	CacheRequests *prometheus.CounterVec

	// Chain directory
	ChainDirectorySize prometheus.Gauge
}

// New creates a Metrics instance with every collector registered.
// Go runtime and process collectors are registered as well.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ServerErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "server_errors",
			Help: "Requests that failed with a server side error",
		}),
		ValidationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "validation_errors",
			Help: "Requests rejected because of invalid parameters",
		}),
		SuccessfulQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "successful_queries",
			Help: "Queries answered successfully, by route",
		}, []string{"path"}),
		FailedQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "failed_queries",
			Help: "Queries that returned an error, by route",
		}, []string{"path"}),
		RowsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "rows_received",
			Help: "Rows returned by the store",
		}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "Time spent answering a query, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),

		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_requests",
			Help: "Result cache lookups by layer (local, redis) and result (hit, miss)",
		}, []string{"layer", "result"}),

		ChainDirectorySize: f.NewGauge(prometheus.GaugeOpts{
			Name: "chain_directory_size",
			Help: "Chains in the currently published directory",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
