// Package metrics exposes the core's lifecycle/health/recovery counters
// and histograms over the standard Prometheus client. Grounded on the
// teacher's internal/metrics package, with the instrument set renamed
// and re-scoped to this core's operations (sandbox
// get_or_create/terminate/health_check/recovery) instead of the
// teacher's worker-fleet concerns; the teacher's Echo HTTP-request
// middleware and counter are kept since internal/api also uses echo.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SandboxesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandboxcore_sandboxes_active",
			Help: "Number of sandboxes currently tracked in the Registry",
		},
		[]string{"status"},
	)

	SandboxCreateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandboxcore_sandbox_create_duration_seconds",
			Help:    "Time to allocate ports, create and start a sandbox container",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"profile"},
	)

	SandboxCreatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxcore_sandbox_creates_total",
			Help: "Total get_or_create outcomes",
		},
		[]string{"outcome"}, // created, recreated, reused, error
	)

	SandboxTerminatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxcore_sandbox_terminates_total",
			Help: "Total terminate calls",
		},
		[]string{"purge"},
	)

	ExecuteToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandboxcore_execute_tool_duration_seconds",
			Help:    "Time to forward an execute_tool call over the control channel",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0},
		},
		[]string{"tool"},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandboxcore_health_check_duration_seconds",
			Help:    "Time for one health check pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"level"},
	)

	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxcore_health_checks_total",
			Help: "Total health check results",
		},
		[]string{"status"}, // healthy, degraded, unhealthy, unknown
	)

	RecoveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxcore_recovery_attempts_total",
			Help: "Total automatic recovery attempts",
		},
		[]string{"action"}, // reconnect, recreate
	)

	RecoveryOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxcore_recovery_outcomes_total",
			Help: "Total automatic recovery outcomes",
		},
		[]string{"action", "result"}, // result: success, failed, max_attempts, coalesced
	)

	OrphanCleanupRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxcore_orphan_cleanup_removed_total",
			Help: "Total containers removed by the Orphan Cleaner",
		},
		[]string{"reason"}, // unlabeled, stale, untracked
	)

	PortAllocationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandboxcore_port_allocations_active",
			Help: "Number of port triplets currently allocated",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandboxcore_http_requests_total",
			Help: "Total HTTP requests served by internal/api",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SandboxesActive,
		SandboxCreateDuration,
		SandboxCreatesTotal,
		SandboxTerminatesTotal,
		ExecuteToolDuration,
		HealthCheckDuration,
		HealthChecksTotal,
		RecoveryAttemptsTotal,
		RecoveryOutcomesTotal,
		OrphanCleanupRemovedTotal,
		PortAllocationsActive,
		HTTPRequestsTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()

			return err
		}
	}
}
