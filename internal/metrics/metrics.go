// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	RunOutcomeSuccess = "success"
	RunOutcomeError   = "error"
	RunOutcomeOverlap = "overlap"
	RunOutcomeLocked  = "locked"
)

// NotifierMetrics tracks abandoned cart reminder runs. A nil receiver is a
// no-op so callers may run without metrics.
type NotifierMetrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	emailsSent    *prometheus.CounterVec
	emailFailures *prometheus.CounterVec
	sendRetries   prometheus.Counter
	cartsSkipped  *prometheus.CounterVec
}

func NewNotifierMetrics(registerer prometheus.Registerer) *NotifierMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &NotifierMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_notifier_runs_total",
			Help: "Abandoned cart notifier runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_notifier_run_duration_seconds",
			Help:    "Abandoned cart notifier run latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_notifier_emails_sent_total",
			Help: "Reminder emails delivered by reminder number.",
		}, []string{"reminder"}),
		emailFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_notifier_email_failures_total",
			Help: "Reminder emails that failed after all attempts.",
		}, []string{"reminder"}),
		sendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_notifier_send_retries_total",
			Help: "Email send attempts beyond the first.",
		}),
		cartsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_notifier_carts_skipped_total",
			Help: "Eligible carts not emailed, by reason.",
		}, []string{"reason"}),
	}

	registerer.MustRegister(m.runs, m.runDuration, m.emailsSent, m.emailFailures, m.sendRetries, m.cartsSkipped)
	return m
}

func (m *NotifierMetrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if outcome == RunOutcomeSuccess || outcome == RunOutcomeError {
		m.runDuration.Observe(d.Seconds())
	}
}

func (m *NotifierMetrics) IncEmailSent(reminder int) {
	if m == nil {
		return
	}
	m.emailsSent.WithLabelValues(strconv.Itoa(reminder)).Inc()
}

func (m *NotifierMetrics) IncEmailFailure(reminder int) {
	if m == nil {
		return
	}
	m.emailFailures.WithLabelValues(strconv.Itoa(reminder)).Inc()
}

func (m *NotifierMetrics) IncSendRetry() {
	if m == nil {
		return
	}
	m.sendRetries.Inc()
}

func (m *NotifierMetrics) IncCartSkipped(reason string) {
	if m == nil {
		return
	}
	m.cartsSkipped.WithLabelValues(reason).Inc()
}

// HTTPMetrics records request latency per route pattern.
type HTTPMetrics struct {
	requests *prometheus.HistogramVec
}

func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	registerer.MustRegister(requests)
	return &HTTPMetrics{requests: requests}
}

func (m *HTTPMetrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// NewServer serves the collectors gathered by g on /metrics. Processes
// without an API router, such as the standalone notifier, use it.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
