package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mogiioin/hls-proxy/internal/logging"
	"github.com/mogiioin/hls-proxy/internal/metrics"
	"github.com/mogiioin/hls-proxy/internal/telemetry"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID keeps a sane incoming X-Request-ID or assigns a new uuid, and
// echoes it on the response.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// logger returns the server logger bound to the request id of r.
func (s *Server) logger(r *http.Request) *logrus.Entry {
	return s.log.WithField("request_id", RequestID(r.Context()))
}

// logRequests logs one line per request once it has completed.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := metrics.RoutePattern(r)
		entry := s.logger(r).WithFields(logrus.Fields{
			"method":      r.Method,
			"route":       route,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      r.RemoteAddr,
			"user_agent":  logging.Truncate(r.UserAgent()),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		case route == "/healthz" || route == "/metrics" || r.Method == http.MethodOptions:
			entry.Debug("request served")
		default:
			entry.Info("request served")
		}
	})
}

// recoverer turns a panic into a 500 response and reports it to Sentry.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				// the client went away mid-response
				panic(rec)
			}
			s.logger(r).WithField("panic", fmt.Sprint(rec)).Error("handler panicked")
			telemetry.CapturePanic(rec, r, map[string]string{
				"service":    ServiceName,
				"request_id": RequestID(r.Context()),
			})
			writeText(w, http.StatusInternalServerError, fmt.Sprintf("Server error: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}
