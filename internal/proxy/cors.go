package proxy

import "net/http"

const (
	corsAllowOrigin   = "*"
	corsAllowMethods  = "GET, OPTIONS"
	corsAllowHeaders  = "Origin, X-Requested-With, Content-Type, Accept, Range"
	corsExposeHeaders = "Content-Length, Content-Range, Accept-Ranges, X-Request-ID"
)

// cors adds the CORS headers to every response and answers preflight
// requests with 204 before routing.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", corsAllowOrigin)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
