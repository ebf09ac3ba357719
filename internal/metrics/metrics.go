// Package metrics provides the Prometheus instrumentation of the proxy.
//
// Metrics registered here:
//
//	hlsproxy_http_requests_total            counter: requests by route/method/status
//	hlsproxy_http_request_duration_seconds  histogram: latency by route/method
//	hlsproxy_manifest_rewrites_total        counter: rewritten playlists by type
//	hlsproxy_rewritten_references_total     counter: rewritten URIs by kind
//	hlsproxy_manifest_content_types_total   counter: upstream playlist media types
//	hlsproxy_relayed_bytes_total            counter: bytes streamed by route
//	hlsproxy_active_relays                  gauge: relays in progress
//	hlsproxy_upstream_errors_total          counter: failed upstream fetches by reason
//	hlsproxy_fallback_fetches_total         counter: alternative manifest fetches
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

const namespace = "hlsproxy"

// HTTPRequests counts HTTP requests by route pattern, method and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "Total HTTP requests handled.",
}, []string{"route", "method", "status"})

// HTTPDuration tracks HTTP request latency. For relays this includes the
// time spent streaming the body.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method"})

var ManifestRewrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "manifest_rewrites_total",
	Help:      "Playlists rewritten, by detected playlist type.",
}, []string{"type"})

var RewrittenReferences = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "rewritten_references_total",
	Help:      "URIs re-targeted through the proxy, by reference kind.",
}, []string{"kind"})

// ManifestContentTypes counts upstream playlist responses by whether their
// Content-Type names a playlist media type ("playlist") or not ("other").
var ManifestContentTypes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "manifest_content_types_total",
	Help:      "Upstream playlist responses by declared media type.",
}, []string{"declared"})

var RelayedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "relayed_bytes_total",
	Help:      "Bytes streamed from upstream to clients.",
}, []string{"route"})

var ActiveRelays = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "active_relays",
	Help:      "Segment and key relays in progress.",
})

// UpstreamErrors counts failed upstream fetches. reason is one of status,
// network, empty, invalid, stalled.
var UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "upstream_errors_total",
	Help:      "Failed upstream fetches by reason.",
}, []string{"reason"})

var FallbackFetches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "fallback_fetches_total",
	Help:      "Alternative fetches made after an empty manifest body.",
})

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. It must be mounted on a
// chi router so that the route pattern, not the raw path, is used as label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := RoutePattern(r)
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// RoutePattern returns the chi route pattern matched by r, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
