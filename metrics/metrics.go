// Package metrics exposes Prometheus instrumentation for the consensus
// service and the standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DBYGuy/truthforge/common"
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

var (
	votesRecorded = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "truthforge_votes_recorded_total",
		Help: "Votes accepted into pools, by side.",
	}, []string{"side"})

	poolsClosed = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "truthforge_pools_closed_total",
		Help: "Pools closed, by cause.",
	}, []string{"cause"})

	claimsSettled = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "truthforge_claims_settled_total",
		Help: "Entitlements paid out.",
	})

	biasObserved = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "truthforge_vote_bias",
		Help:    "Bias scores of accepted votes.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	serviceInfo = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "truthforge_service_info",
		Help: "Identity of the serving binary; the value is always 1.",
	}, []string{"service", "version"})
)

// MetricsServer serves the Prometheus scrape endpoint on its own
// listener, separate from the API server.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given address. The package name
// is reported on the service identity gauge.
func New(pkgName, listenAddr string) (*MetricsServer, error) {
	serviceInfo.WithLabelValues(pkgName, common.Version).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	))

	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe starts serving scrapes. Blocks until shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
