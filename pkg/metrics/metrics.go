package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	AppointmentsTotal  *prometheus.CounterVec
	BookingConflicts   prometheus.Counter
	AvailabilityChecks *prometheus.CounterVec
	FreeSlotsListed    prometheus.Histogram

	SlotCacheHits   prometheus.Counter
	SlotCacheMisses prometheus.Counter

	SweepRuns     *prometheus.CounterVec
	NoShowsMarked prometheus.Counter

	AuditEntriesTotal  prometheus.Counter
	AuditBufferDropped prometheus.Counter
}

// NewCollector registers every metric on reg. Tests pass a fresh
// prometheus.NewRegistry() so collectors can be built repeatedly.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		AppointmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "appointments_total",
			Help:      "Appointments moved into each status.",
		}, []string{"status"}),

		BookingConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Booking attempts rejected because the slot was taken.",
		}),

		AvailabilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "checks_total",
			Help:      "Availability checks by outcome (available, conflict, invalid).",
		}, []string{"outcome"}),

		FreeSlotsListed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "free_slots",
			Help:      "Number of free slots returned per listing.",
			Buckets:   []float64{0, 1, 2, 4, 8, 12, 16, 24, 32, 48},
		}),

		SlotCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slot_cache",
			Name:      "hits_total",
			Help:      "Free-slot lists served from cache.",
		}),

		SlotCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slot_cache",
			Name:      "misses_total",
			Help:      "Free-slot lists computed from the store.",
		}),

		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "No-show sweeps by result (ok, error).",
		}, []string{"result"}),

		NoShowsMarked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "no_shows_total",
			Help:      "Appointments marked no-show by the sweeper.",
		}),

		AuditEntriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit log entries written.",
		}),

		AuditBufferDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "buffer_dropped_total",
			Help:      "Audit entries dropped due to full buffer. Alert if non-zero.",
		}),
	}
}

// Hit and Miss let the collector serve as slot cache stats.
func (c *Collector) Hit()  { c.SlotCacheHits.Inc() }
func (c *Collector) Miss() { c.SlotCacheMisses.Inc() }

func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
