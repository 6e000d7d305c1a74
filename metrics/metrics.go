package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Execution and batch collectors, recorded by the sandbox package.
var (
	// ExecutionsTotal counts completed program runs by backend and
	// classified status ("error" marks backend launch failures).
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runbox_executions_total",
		Help: "Total program executions by backend and status",
	}, []string{"backend", "status"})

	// ExecutionDuration observes wall time of successful runs, staging and
	// cleanup included.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "runbox_execution_duration_seconds",
		Help:    "Program execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// ActiveExecutions tracks currently running programs.
	ActiveExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "runbox_active_executions",
		Help: "Number of program executions currently in flight",
	})

	// BatchesTotal counts batch runs by outcome (success or error).
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runbox_batches_total",
		Help: "Total batch runs by outcome",
	}, []string{"outcome"})
)

// Serve exposes the Prometheus registry on /metrics at the given port.
func Serve(logger *zap.Logger, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("serving metrics", zap.Int("port", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
