// Package metrics exposes the service counters on a dedicated prometheus
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seat_reservation"

type Metrics struct {
	registry *prometheus.Registry

	lockAcquire   *prometheus.CounterVec
	lockExtend    *prometheus.CounterVec
	idempotency   *prometheus.CounterVec
	reservations  *prometheus.CounterVec
	reaperCycles  *prometheus.CounterVec
	reaperRows    *prometheus.CounterVec
	eventsPublish *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lockAcquire: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Distributed lock acquisition attempts by result.",
		}, []string{"result"}),
		lockExtend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_extend_total",
			Help:      "Distributed lock extensions by result.",
		}, []string{"result"}),
		idempotency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_outcomes_total",
			Help:      "Idempotency coordinator outcomes.",
		}, []string{"outcome"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Seat reservation and hold attempts by operation and result.",
		}, []string{"operation", "result"}),
		reaperCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_cycles_total",
			Help:      "Background reaper cycles by reaper and result.",
		}, []string{"reaper", "result"}),
		reaperRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_rows_total",
			Help:      "Rows changed by background reapers.",
		}, []string{"reaper"}),
		eventsPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to the broker by type and result.",
		}, []string{"type", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.lockAcquire,
		m.lockExtend,
		m.idempotency,
		m.reservations,
		m.reaperCycles,
		m.reaperRows,
		m.eventsPublish,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LockAcquire(result string) {
	if m == nil {
		return
	}
	m.lockAcquire.WithLabelValues(result).Inc()
}

func (m *Metrics) LockExtend(ok bool) {
	if m == nil {
		return
	}
	m.lockExtend.WithLabelValues(resultLabel(ok)).Inc()
}

func (m *Metrics) Idempotency(outcome string) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reservation(operation, result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ReaperCycle(reaper string, rows int64, err error) {
	if m == nil {
		return
	}
	m.reaperCycles.WithLabelValues(reaper, resultLabel(err == nil)).Inc()
	if rows > 0 {
		m.reaperRows.WithLabelValues(reaper).Add(float64(rows))
	}
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.eventsPublish.WithLabelValues(eventType, resultLabel(err == nil)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
