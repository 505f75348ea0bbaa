package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID back to the caller. An incoming
// value is reused so IDs can be correlated across hops.
const RequestIDHeader = "X-Request-ID"

// quietPaths log at debug level while they succeed.
var quietPaths = map[string]bool{"/api/health": true}

// Logging writes one access-log line per request and tags the response with
// a request ID.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			began := time.Now()
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case quietPaths[r.URL.Path]:
				level = slog.LevelDebug
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("request_id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("bytes", rec.written),
				slog.Duration("elapsed", time.Since(began)),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}

// recorder remembers the first status code and counts body bytes.
type recorder struct {
	http.ResponseWriter
	status  int
	written int64
	sent    bool
}

func (rec *recorder) WriteHeader(code int) {
	if !rec.sent {
		rec.status, rec.sent = code, true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.sent = true
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

func (rec *recorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// Hijack is needed by the /ws upgrade.
func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer cannot be hijacked")
	}
	rec.status, rec.sent = http.StatusSwitchingProtocols, true
	return hj.Hijack()
}
