// Package proxy serves the HTTP surface of the HLS proxy: playlist
// rewriting, segment and key relays, CORS, health and metrics.
package proxy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mogiioin/hls-proxy/internal/config"
	"github.com/mogiioin/hls-proxy/internal/headers"
	"github.com/mogiioin/hls-proxy/internal/metrics"
	"github.com/mogiioin/hls-proxy/internal/upstream"
	"github.com/mogiioin/hls-proxy/m3u8"
)

// ServiceName identifies the proxy in logs, health checks and Sentry.
const ServiceName = "hlsproxy"

// Upstream fetches from origin servers. *upstream.Client implements it.
type Upstream interface {
	FetchManifest(ctx context.Context, target string, header http.Header) (*upstream.Manifest, error)
	Open(ctx context.Context, target string, header http.Header) (*http.Response, error)
}

// Server is the HLS proxy HTTP server.
type Server struct {
	cfg      config.Config
	up       Upstream
	rewriter *m3u8.Rewriter
	defaults headers.Defaults
	log      *logrus.Entry
}

// NewServer creates a proxy server.
func NewServer(cfg config.Config, up Upstream, log *logrus.Entry) *Server {
	rw := m3u8.NewRewriter(cfg.PublicURL)
	rw.RewriteRenditions = cfg.RewriteRenditions
	return &Server{
		cfg:      cfg,
		up:       up,
		rewriter: rw,
		defaults: headers.Defaults{
			UserAgent: cfg.UserAgent,
			Referer:   cfg.DefaultReferer,
		},
		log: log,
	}
}

// Routes returns the router with every proxy endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(cors)
	r.Use(metrics.Middleware)
	r.Use(s.logRequests)
	r.Use(s.recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Get(string(m3u8.RouteM3U8), s.handleManifest)
	r.Get(string(m3u8.RouteSegment), s.handleSegment)
	r.Get(string(m3u8.RouteKey), s.handleKey)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": ServiceName,
	})
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
