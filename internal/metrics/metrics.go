package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medtracker"

// Metrics holds the collectors of one process. Each instance owns a private
// registry so tests can build as many as they like.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	dosesTaken       prometheus.Counter
	dosesUnmarked    prometheus.Counter
	validationErrors *prometheus.CounterVec
	reminderOps      *prometheus.CounterVec
	alertsSent       *prometheus.CounterVec
	dueSoon          prometheus.Gauge
	medications      prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		dosesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_taken_total",
			Help:      "Dose occurrences marked as taken.",
		}),
		dosesUnmarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_unmarked_total",
			Help:      "Dose occurrences whose taken mark was removed.",
		}),
		validationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Rejected medication inputs by error code.",
		}, []string{"code"}),
		reminderOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_operations_total",
			Help:      "Notifier operations by kind and result.",
		}, []string{"op", "result"}),
		alertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Reminder deliveries by source and result.",
		}, []string{"source", "result"}),
		dueSoon: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "doses_due_soon",
			Help:      "Untaken doses inside the due-soon window at the last check.",
		}),
		medications: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "medications",
			Help:      "Medications currently stored.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.dosesTaken,
		m.dosesUnmarked,
		m.validationErrors,
		m.reminderOps,
		m.alertsSent,
		m.dueSoon,
		m.medications,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordDoseTaken() {
	m.dosesTaken.Inc()
}

func (m *Metrics) RecordDoseUnmarked() {
	m.dosesUnmarked.Inc()
}

func (m *Metrics) RecordValidationError(code string) {
	m.validationErrors.WithLabelValues(code).Inc()
}

// RecordReminderOp counts one notifier call; op is schedule, cancel or list.
func (m *Metrics) RecordReminderOp(op string, err error) {
	m.reminderOps.WithLabelValues(op, result(err)).Inc()
}

// RecordAlert counts one delivery; source is trigger (cron fire) or runner.
func (m *Metrics) RecordAlert(source string, err error) {
	m.alertsSent.WithLabelValues(source, result(err)).Inc()
}

func (m *Metrics) SetDueSoon(n int) {
	m.dueSoon.Set(float64(n))
}

func (m *Metrics) SetMedications(n int) {
	m.medications.Set(float64(n))
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
