package proxy

import (
	"errors"
	"io"
	"net/http"

	"github.com/mogiioin/hls-proxy/internal/logging"
	"github.com/mogiioin/hls-proxy/internal/metrics"
	"github.com/mogiioin/hls-proxy/internal/upstream"
	"github.com/mogiioin/hls-proxy/m3u8"
)

const (
	defaultSegmentType = "video/MP2T"
	defaultKeyType     = "application/octet-stream"
)

// mirrored are the upstream response headers copied onto relayed responses.
var mirrored = []string{"Content-Length", "Content-Range", "Accept-Ranges"}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	s.relay(w, r, m3u8.RouteSegment, defaultSegmentType)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	s.relay(w, r, m3u8.RouteKey, defaultKeyType)
}

// relay streams the target's body to the client without buffering it.
func (s *Server) relay(w http.ResponseWriter, r *http.Request, route m3u8.Route, defaultType string) {
	req, err := s.parseRequest(r)
	if err != nil {
		s.fail(w, r, "", err)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" && req.header.Get("Range") == "" {
		req.header.Set("Range", rng)
	}

	resp, err := s.up.Open(r.Context(), req.target, req.header)
	if err != nil {
		s.fail(w, r, req.target, err)
		return
	}
	defer resp.Body.Close()

	metrics.ActiveRelays.Inc()
	defer metrics.ActiveRelays.Dec()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = defaultType
	}
	w.Header().Set("Content-Type", ct)
	for _, name := range mirrored {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	status := http.StatusOK
	if resp.StatusCode == http.StatusPartialContent {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	n, err := io.Copy(w, resp.Body)
	metrics.RelayedBytes.WithLabelValues(string(route)).Add(float64(n))
	if err != nil {
		entry := s.logger(r).WithError(err).WithField("url", logging.Truncate(req.target)).WithField("bytes", n)
		if r.Context().Err() != nil || errors.Is(err, http.ErrAbortHandler) {
			entry.Debug("client disconnected during relay")
			return
		}
		if errors.Is(err, upstream.ErrStalled) {
			metrics.UpstreamErrors.WithLabelValues("stalled").Inc()
		}
		entry.Warn("relay interrupted")
	}
}
