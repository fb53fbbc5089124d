package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"sprint-academy/internal/logger"
	"sprint-academy/internal/visitor"
)

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// RequestLogger logs every request with its status and latency.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", rec.status,
				"latency", time.Since(start),
				"client_ip", r.RemoteAddr,
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, "query", r.URL.RawQuery)
			}
			switch {
			case rec.status >= http.StatusInternalServerError:
				log.Error("Incoming Request", fields...)
			case rec.status >= http.StatusBadRequest:
				log.Warn("Incoming Request", fields...)
			default:
				log.Info("Incoming Request", fields...)
			}
		})
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				if err := recover(); err != nil {
					log.Error("Panic recovered", "error", err, "stacktrace", string(debug.Stack()), "path", r.URL.Path, "method", r.Method)
					if !rec.written {
						respondWithError(rec, http.StatusInternalServerError, "Internal server error")
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// RequireUser rejects requests from visitors that have not signed in.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := visitor.FromContext(r.Context())
		if !ok || !v.SignedIn() {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
