package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Errors          *prometheus.CounterVec
	TicketEvents    *prometheus.CounterVec
	Attachments     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_desk_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "support_desk_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_desk_http_errors_total",
			Help: "Error responses by route, method and error code",
		}, []string{"route", "method", "code"}),
		TicketEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "support_desk_ticket_events_total",
			Help: "Ticket domain events by type",
		}, []string{"type"}),
		Attachments: factory.NewCounter(prometheus.CounterOpts{
			Name: "support_desk_attachments_stored_total",
			Help: "Attachments accepted and stored",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(route, method, code).Inc()
}

// RecordTicketEvent counts a published ticket event.
func (m *Metrics) RecordTicketEvent(eventType string) {
	if m == nil {
		return
	}
	m.TicketEvents.WithLabelValues(eventType).Inc()
}

// RecordAttachment counts a stored attachment.
func (m *Metrics) RecordAttachment() {
	if m == nil {
		return
	}
	m.Attachments.Inc()
}
