package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/ksid"

	"github.com/maruel/gallery/internal/server/reqctx"
)

// statusWriter records the status code written by the next handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestMetadata assigns each request an id, returned as X-Request-Id, and
// records the client IP in the context. Each request is logged once it is
// served.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ksid.NewID()
		ip := reqctx.GetClientIP(r)
		ctx := reqctx.WithRequestID(reqctx.WithClientIP(r.Context(), ip), id)
		w.Header().Set("X-Request-Id", id.String())
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		slog.InfoContext(ctx, "http",
			"req", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"ip", ip,
			"dur", time.Since(start).Round(time.Millisecond/10),
		)
	})
}
