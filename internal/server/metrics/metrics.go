// Package metrics provides Prometheus metrics for the sync server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/contactsync/internal/syncer"
)

const namespace = "contactsync"

// Результаты обработки отдельных записей в sync
const (
	resultPulled   = "pulled"
	resultInserted = "inserted"
	resultAccepted = "accepted"
	resultConflict = "conflict"
	resultError    = "error"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metrics.
// Метрики регистрируются в собственном реестре, а не в глобальном.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	syncTotal       *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	syncRecords     *prometheus.CounterVec
	lastServerTime  prometheus.Gauge
}

var (
	_ syncer.Recorder = (*Metrics)(nil)
)

// New creates and registers Prometheus metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"method", "route"},
		),
		syncTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_total",
				Help:      "Total number of sync calls by outcome",
			},
			[]string{"outcome"},
		),
		syncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Sync call duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"outcome"},
		),
		syncRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_records_total",
				Help:      "Records processed by sync calls (pulled, inserted, accepted, conflict, error)",
			},
			[]string{"result"},
		),
		lastServerTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_last_server_time_seconds",
				Help:      "Unix time of the last serverTime issued to a client",
			},
		),
	}
}

// ObserveHTTP records metrics for an HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSync records metrics for a sync call.
func (m *Metrics) ObserveSync(outcome syncer.Outcome, duration time.Duration, resp *syncer.Response) {
	m.syncTotal.WithLabelValues(string(outcome)).Inc()
	m.syncDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())

	if resp == nil {
		return
	}

	m.syncRecords.WithLabelValues(resultPulled).Add(float64(len(resp.ServerChanges)))
	m.syncRecords.WithLabelValues(resultInserted).Add(float64(resp.Inserted))
	m.syncRecords.WithLabelValues(resultAccepted).Add(float64(resp.Accepted))
	m.syncRecords.WithLabelValues(resultConflict).Add(float64(len(resp.Conflicts)))
	m.syncRecords.WithLabelValues(resultError).Add(float64(len(resp.Errors)))

	if !resp.ServerTime.IsZero() {
		m.lastServerTime.Set(float64(resp.ServerTime.UnixMicro()) / 1e6)
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns HTTP handler exposing metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
