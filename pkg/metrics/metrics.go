// Package metrics owns the inbound HTTP metrics and the /metrics handler.
// Component metrics are defined in their respective packages (client, cache,
// pagination, geo, upload) and registered via promauto on the default registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the gateway.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// UnmatchedRoute labels requests no route pattern claimed.
const UnmatchedRoute = "unmatched"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hr_gateway_http_requests_total",
		Help: "Total inbound HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hr_gateway_http_request_duration_seconds",
		Help:    "Inbound HTTP request duration in seconds by route pattern",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"route"})
)

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and duration labelled with the chi route
// pattern, so record ids never become label values.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := UnmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - hr_gateway_http_requests_total{route, method, status} (Counter): Inbound requests
//   - hr_gateway_http_request_duration_seconds{route} (Histogram): Inbound request duration
//
// Upstream Metrics (pkg/client):
//   - hr_gateway_upstream_requests_total{resource, status} (Counter): Backing-source calls
//   - hr_gateway_upstream_request_duration_seconds{resource} (Histogram): Backing-source call duration
//   - hr_gateway_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Pagination Metrics (pkg/pagination):
//   - hr_gateway_pagination_pages_total{resource} (Counter): Pages fetched while aggregating
//   - hr_gateway_pagination_aborts_total{reason} (Counter): Aborted aggregations (page_error, page_limit, stale_cursor, cancelled)
//
// Cache Metrics (pkg/cache):
//   - hr_gateway_cache_hits_total (Counter): Cache hits
//   - hr_gateway_cache_misses_total (Counter): Cache misses
//   - hr_gateway_cache_errors_total{operation} (Counter): Cache operation errors
//
// Enrichment Metrics (pkg/geo, pkg/upload):
//   - hr_gateway_geo_lookups_total{outcome} (Counter): Lookups (located, degraded, cached)
//   - hr_gateway_uploads_total{outcome} (Counter): Uploads (success, provider_error, invalid, error)
//
// Example Prometheus Queries:
//
//   # Backing-source error rate
//   sum(rate(hr_gateway_upstream_errors_total[5m])) by (class)
//
//   # Pages per aggregation
//   rate(hr_gateway_pagination_pages_total[5m]) /
//   rate(hr_gateway_http_requests_total{route="/api/*",method="GET"}[5m])
//
//   # Geolocation degradation ratio
//   rate(hr_gateway_geo_lookups_total{outcome="degraded"}[5m]) /
//   sum(rate(hr_gateway_geo_lookups_total[5m]))
//
//   # P95 inbound latency
//   histogram_quantile(0.95, rate(hr_gateway_http_request_duration_seconds_bucket[5m]))
