// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the custom collectors.  A private registry keeps tests
// free of duplicate registration panics.
type Metrics struct {
	Registry               *prometheus.Registry
	ReservationsCreated    prometheus.Counter
	ReservationTransitions *prometheus.CounterVec   // by target status
	BookingErrors          *prometheus.CounterVec   // by error code
	CreateConflicts        prometheus.Counter       // storage conflicts that triggered a retry
	ExpiredSwept           prometheus.Counter
	EventsPublished        *prometheus.CounterVec   // by event type and result
	EmailsSent             *prometheus.CounterVec   // by event type and result
	HTTPLatency            *prometheus.HistogramVec // by method, route and status
}

// New creates and registers the collectors under namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ReservationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservations created.",
		}),
		ReservationTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservation status transitions by target status.",
		}, []string{"to"}),
		BookingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_errors_total",
			Help:      "Booking operations refused, by error code.",
		}, []string{"code"}),
		CreateConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_create_conflicts_total",
			Help:      "Create transactions retried after a storage conflict.",
		}),
		ExpiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_expired_total",
			Help:      "Pending reservations deleted after the window elapsed.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Reservation events handed to the broker.",
		}, []string{"type", "result"}),
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Notification emails attempted.",
		}, []string{"type", "result"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		m.ReservationsCreated,
		m.ReservationTransitions,
		m.BookingErrors,
		m.CreateConflicts,
		m.ExpiredSwept,
		m.EventsPublished,
		m.EmailsSent,
		m.HTTPLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
