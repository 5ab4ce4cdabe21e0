package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationStampsHeadersAndContext(t *testing.T) {
	var sawCorrelationID, sawRequestID string

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCorrelationID = CorrelationID(r.Context())
		sawRequestID = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/apps", nil)
	rec := httptest.NewRecorder()
	Correlation(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "local", rec.Header().Get("x-minifly-region"))
	assert.NotEmpty(t, rec.Header().Get("x-minifly-correlation-id"))
	assert.Equal(t, rec.Header().Get("x-minifly-correlation-id"), sawCorrelationID)
	assert.NotEmpty(t, sawRequestID)
	assert.NotEqual(t, sawCorrelationID, sawRequestID)
}

func TestCorrelationDefaultsStatusToOKWhenUnwritten(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	Correlation(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
