package middleware

import (
	"net/http"
	"time"

	"github.com/apex-authority/backoffice/internal/logging"
)

// TracingMiddleware threads a trace ID through every request and emits one
// request log line when the handler returns.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates the middleware. logger may be nil.
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	if logger == nil {
		logger = logging.NewDefault("http")
	}
	return &TracingMiddleware{logger: logger}
}

// Handler reuses an inbound X-Trace-ID when the caller carried one, so a
// retried request stays correlated across attempts, and mints one otherwise.
// The ID is echoed on the response and placed in the request context for the
// loggers downstream.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = logging.NewTraceID()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))
		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
