package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters and histograms for reservations, search and the
// realtime bus. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reservations      *prometheus.CounterVec
	reserveLatency    prometheus.Histogram
	searchResults     *prometheus.HistogramVec
	searchLatency     prometheus.Histogram
	directoryFailures *prometheus.CounterVec
	realtimeDropped   *prometheus.CounterVec
	realtimeConns     prometheus.Gauge
	relayMessages     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicnear",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		reserveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicnear",
			Subsystem: "booking",
			Name:      "reserve_duration_seconds",
			Help:      "Latency of reservation attempts",
			Buckets:   prometheus.DefBuckets,
		}),
		searchResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicnear",
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results per search by source",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"source"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicnear",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Latency of nearby searches",
			Buckets:   prometheus.DefBuckets,
		}),
		directoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicnear",
			Subsystem: "directory",
			Name:      "failures_total",
			Help:      "External directory calls that failed or timed out",
		}, []string{"operation"}),
		realtimeDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicnear",
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Realtime messages dropped instead of blocking the publisher",
		}, []string{"reason"}),
		realtimeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinicnear",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open realtime connections",
		}),
		relayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicnear",
			Subsystem: "realtime",
			Name:      "relay_messages_total",
			Help:      "Messages exchanged with the cross-instance relay",
		}, []string{"direction", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservations, m.reserveLatency, m.searchResults, m.searchLatency,
		m.directoryFailures, m.realtimeDropped, m.realtimeConns, m.relayMessages)
	return m
}

func (m *Metrics) ObserveReservation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
	m.reserveLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveSearch(internal, external int, d time.Duration) {
	if m == nil {
		return
	}
	m.searchResults.WithLabelValues("internal").Observe(float64(internal))
	m.searchResults.WithLabelValues("external").Observe(float64(external))
	m.searchLatency.Observe(d.Seconds())
}

func (m *Metrics) DirectoryFailure(operation string) {
	if m == nil {
		return
	}
	m.directoryFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) RealtimeDropped(reason string) {
	if m == nil {
		return
	}
	m.realtimeDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RealtimeConnections(delta float64) {
	if m == nil {
		return
	}
	m.realtimeConns.Add(delta)
}

func (m *Metrics) RelayMessage(direction, status string) {
	if m == nil {
		return
	}
	m.relayMessages.WithLabelValues(direction, status).Inc()
}
