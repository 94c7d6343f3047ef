// metrics описывает Prometheus-метрики auth-сервиса:
// HTTP-запросы (число и длительность по шаблону маршрута) и доменные события
// (signup/login/refresh/... с результатом).
//
// Экземпляр Metrics регистрирует коллекторы в переданном Registerer,
// поэтому в тестах используется собственный prometheus.Registry.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auth"

// Доменные события.
const (
	EventSignup  = "signup"
	EventLogin   = "login"
	EventLogout  = "logout"
	EventRefresh = "refresh"
	EventVerify  = "verify"
	EventResend  = "resend"
	EventForgot  = "forgot"
	EventReset   = "reset"
)

// Результаты доменного события.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics — набор коллекторов сервиса.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New создаёт и регистрирует коллекторы в reg.
// reg == nil — используется prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	f := promauto.With(reg)

	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Auth events by kind and result.",
		}, []string{"event", "result"}),
		gatherer: gatherer,
	}
}

// ObserveRequest учитывает завершённый HTTP-запрос.
func (m *Metrics) ObserveRequest(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}

	if route == "" {
		route = "unmatched"
	}

	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(dur.Seconds())
}

// ObserveEvent учитывает доменное событие. Результат вычисляется по err:
// nil — ok, ошибка из rejected (ожидаемый отказ) — rejected, иначе error.
func (m *Metrics) ObserveEvent(event string, err error, rejected ...error) {
	if m == nil {
		return
	}

	m.events.WithLabelValues(event, resultOf(err, rejected)).Inc()
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func resultOf(err error, rejected []error) string {
	if err == nil {
		return ResultOK
	}

	for _, r := range rejected {
		if errors.Is(err, r) {
			return ResultRejected
		}
	}

	return ResultError
}
