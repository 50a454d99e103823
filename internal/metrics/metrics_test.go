package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNotifierMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewNotifierMetrics(registry)

	m.ObserveRun(RunOutcomeSuccess, 2*time.Second)
	m.ObserveRun(RunOutcomeLocked, 0)
	m.IncEmailSent(1)
	m.IncEmailSent(1)
	m.IncEmailSent(3)
	m.IncEmailFailure(2)
	m.IncSendRetry()
	m.IncCartSkipped("older_cart")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(RunOutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(RunOutcomeLocked)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.emailsSent.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emailsSent.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emailFailures.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cartsSkipped.WithLabelValues("older_cart")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *NotifierMetrics
	m.ObserveRun(RunOutcomeError, time.Second)
	m.IncEmailSent(1)
	m.IncEmailFailure(1)
	m.IncSendRetry()
	m.IncCartSkipped("x")

	var h *HTTPMetrics
	h.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
}

func TestHTTPMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry)

	m.ObserveRequest(http.MethodGet, "/api/cart/cart/", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.requests))
}

func TestNewServerExposesNotifierMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewNotifierMetrics(registry)
	m.IncEmailSent(2)

	srv := NewServer("", registry)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `checkout_notifier_emails_sent_total{reminder="2"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
