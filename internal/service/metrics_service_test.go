package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.RecordScan(OutcomeOK)
	m.RecordScan(OutcomeUnreadable)
	m.RecordConfirmation("serialized", OutcomeOK, false, 5*time.Millisecond)
	m.RecordConfirmation("serialized", OutcomeOK, true, 5*time.Millisecond)
	m.RecordConfirmation("serialized", OutcomeConflict, false, 5*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/attendees", http.StatusOK, 10*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/attendees", http.StatusOK, 30*time.Millisecond)

	snapshot := m.Snapshot()
	assert.Equal(t, uint64(2), snapshot.Scans)
	assert.Equal(t, uint64(2), snapshot.Confirmations)
	assert.Equal(t, uint64(1), snapshot.Renumbered)
	assert.InDelta(t, 2.0/3.0, snapshot.CacheHitRatio, 1e-9)
	assert.Equal(t, uint64(2), snapshot.RequestsTotal)
	assert.InDelta(t, 20.0, snapshot.AverageRequestDurationMs, 1e-6)

	assert.InDelta(t, 1, testutil.ToFloat64(m.scans.WithLabelValues(OutcomeUnreadable)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.confirmations.WithLabelValues("serialized", OutcomeConflict, "false")), 1e-9)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordNumberingRetry("redis_counter")
	m.RecordPayment(120)
	m.RecordPayment(-5)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `checkin_numbering_retries_total{strategy="redis_counter"} 1`)
	assert.Contains(t, w.Body.String(), "payments_amount_total 120")
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordScan(OutcomeOK)
	m.RecordNumberingRetry("serialized")
	assert.Equal(t, uint64(0), m.Snapshot().Scans)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
