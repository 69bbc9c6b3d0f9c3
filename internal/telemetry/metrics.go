package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "extract"

// Metrics — Prometheus метрики движка.
// Все методы безопасны для nil-получателя: компоненты без метрик их просто не передают.
type Metrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobItems        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	registryRebuild prometheus.Counter
	notifications   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewMetrics создаёт и регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Job runner executions by kind and outcome.",
		}, []string{"kind", "outcome"}),

		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job runner execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		jobItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_items_total",
			Help:      "Items handled by job runners by kind and result.",
		}, []string{"kind", "result"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transitions_total",
			Help:      "Request status transitions by target status.",
		}, []string{"status"}),

		registryRebuild: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_registry_rebuilds_total",
			Help:      "Plugin registry cache rebuilds.",
		}),

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatch results.",
		}, []string{"type", "result"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern and status code.",
		}, []string{"route", "code"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route pattern.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.jobRuns, m.jobDuration, m.jobItems, m.transitions,
		m.registryRebuild, m.notifications, m.httpRequests, m.httpDuration,
	)
	return m
}

// ObserveJob фиксирует один прогон задания.
func (m *Metrics) ObserveJob(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(kind, outcome).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// JobItem фиксирует обработку одного элемента (processed, skipped, failed).
func (m *Metrics) JobItem(kind, result string) {
	if m == nil {
		return
	}
	m.jobItems.WithLabelValues(kind, result).Inc()
}

// Transition фиксирует переход запроса в статус.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// RegistryRebuilt фиксирует перестройку реестра плагинов.
func (m *Metrics) RegistryRebuilt() {
	if m == nil {
		return
	}
	m.registryRebuild.Inc()
}

// Notification фиксирует результат отправки уведомления (sent, disabled, throttled, failed).
func (m *Metrics) Notification(eventType, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(eventType, result).Inc()
}

// HTTPRequest фиксирует обработанный API запрос. route — шаблон маршрута
// ServeMux, а не путь, чтобы не плодить метки по ID.
func (m *Metrics) HTTPRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
