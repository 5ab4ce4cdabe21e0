// Package middleware provides the region/correlation HTTP middleware
// (spec §4.6, component C6): the only place in the control plane that
// mints correlation/request ids.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
)

// CorrelationID extracts the correlation id stamped by Correlation, or
// "" if the request never passed through it.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// RequestID extracts the request id stamped by Correlation.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Correlation generates a correlation_id and request_id per request,
// stamps them on the request context and on the response headers
// (x-minifly-region, x-minifly-correlation-id), and logs method, path,
// status and duration (spec §4.6).
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		correlationID := uuid.New().String()
		requestID := uuid.New().String()

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		ctx = context.WithValue(ctx, requestIDKey, requestID)

		w.Header().Set("x-minifly-region", "local")
		w.Header().Set("x-minifly-correlation-id", correlationID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		klog.V(1).Infof("%s %s %s status=%d duration=%s ua=%q",
			correlationID, r.Method, r.URL.Path, rec.status, time.Since(start), r.UserAgent())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush proxies to the underlying writer's Flusher so SSE handlers
// wrapped by this middleware can still flush incrementally.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
