package proxy

import (
	"errors"
	"net/http"

	"github.com/mogiioin/hls-proxy/internal/logging"
	"github.com/mogiioin/hls-proxy/internal/metrics"
	"github.com/mogiioin/hls-proxy/internal/telemetry"
	"github.com/mogiioin/hls-proxy/internal/upstream"
	"github.com/mogiioin/hls-proxy/m3u8"
)

var ErrMissingTargetURL = errors.New("missing url parameter")

// failure is the client-facing form of an error.
type failure struct {
	status int
	body   string
	reason string // upstream_errors_total label, empty when not an upstream failure
}

// classify maps an error to its response.
func classify(err error) failure {
	var se *upstream.StatusError
	switch {
	case errors.Is(err, ErrMissingTargetURL):
		return failure{http.StatusBadRequest, "Missing url parameter", ""}
	case errors.Is(err, upstream.ErrInvalidTarget),
		errors.Is(err, upstream.ErrPrivateTarget),
		errors.Is(err, m3u8.ErrInvalidSourceURL):
		return failure{http.StatusBadRequest, "Invalid url parameter: " + err.Error(), "invalid"}
	case errors.As(err, &se):
		return failure{se.StatusCode, "Upstream server error: " + se.Status, "status"}
	case errors.Is(err, upstream.ErrFallbackFailed):
		return failure{http.StatusInternalServerError, "Empty M3U8 content received from source and alternative fetch failed", "empty"}
	case errors.Is(err, m3u8.ErrEmptyContent):
		return failure{http.StatusInternalServerError, "Empty M3U8 content received from all sources", "empty"}
	}
	return failure{http.StatusInternalServerError, "Proxy error: " + err.Error(), "network"}
}

// fail logs err and writes its response. Failures the origin is not
// responsible for are also sent to Sentry.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, target string, err error) {
	f := classify(err)
	if f.reason != "" {
		metrics.UpstreamErrors.WithLabelValues(f.reason).Inc()
	}

	entry := s.logger(r).WithError(err).WithField("status", f.status)
	if target != "" {
		entry = entry.WithField("url", logging.Truncate(target))
	}
	switch {
	case r.Context().Err() != nil:
		entry.Debug("client went away")
	case f.status >= 500 && f.reason == "network":
		entry.Error("upstream fetch failed")
		telemetry.CaptureError(err, map[string]string{
			"service":    ServiceName,
			"route":      r.URL.Path,
			"request_id": RequestID(r.Context()),
		})
	default:
		entry.Warn("request not served")
	}
	writeText(w, f.status, f.body)
}
