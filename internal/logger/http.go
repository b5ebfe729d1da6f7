package logger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware writes one access log line per request. 5xx responses are
// logged at ERROR, 4xx at WARN.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}
		if id := middleware.GetReqID(r.Context()); id != "" {
			fields["request_id"] = id
		}

		switch {
		case status >= 500:
			Error("Request failed", fields)
		case status >= 400:
			Warn("Request rejected", fields)
		default:
			Info("Request handled", fields)
		}
	})
}
