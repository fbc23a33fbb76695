package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the radio service.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	activeStations      prometheus.Gauge
	stationsStarted     prometheus.Counter
	stationsStopped     prometheus.Counter
	segmentsPromoted    prometheus.Counter
	segmentsEvicted     prometheus.Counter
	segmentsServed      prometheus.Counter
	fragmentsDispatched *prometheus.CounterVec
	supplyFailures      prometheus.Counter
	ticksDropped        *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		activeStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radio_active_stations",
			Help: "Number of stations currently running",
		}),
		stationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_stations_started_total",
			Help: "Total number of stations started",
		}),
		stationsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_stations_stopped_total",
			Help: "Total number of stations stopped",
		}),
		segmentsPromoted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_segments_promoted_total",
			Help: "Segment groups moved from pending into a live window",
		}),
		segmentsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_segments_evicted_total",
			Help: "Segment groups slid out of a live window",
		}),
		segmentsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_segments_served_total",
			Help: "Segments returned to clients",
		}),
		fragmentsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radio_fragments_dispatched_total",
			Help: "Fragments handed to engines, by queue",
		}, []string{"source"}),
		supplyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radio_supply_failures_total",
			Help: "Song fetch, materialize or encode failures",
		}),
		ticksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radio_ticks_dropped_total",
			Help: "Scheduler ticks dropped because a subscriber was still busy",
		}, []string{"ticker"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.activeStations,
		m.stationsStarted,
		m.stationsStopped,
		m.segmentsPromoted,
		m.segmentsEvicted,
		m.segmentsServed,
		m.fragmentsDispatched,
		m.supplyFailures,
		m.ticksDropped,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// SetActiveStations sets the active stations gauge.
func (m *Metrics) SetActiveStations(n int) {
	if m == nil {
		return
	}
	m.activeStations.Set(float64(n))
}

func (m *Metrics) IncStationsStarted() {
	if m == nil {
		return
	}
	m.stationsStarted.Inc()
}

func (m *Metrics) IncStationsStopped() {
	if m == nil {
		return
	}
	m.stationsStopped.Inc()
}

func (m *Metrics) AddSegmentsPromoted(n int) {
	if m == nil {
		return
	}
	m.segmentsPromoted.Add(float64(n))
}

func (m *Metrics) AddSegmentsEvicted(n int) {
	if m == nil {
		return
	}
	m.segmentsEvicted.Add(float64(n))
}

func (m *Metrics) IncSegmentsServed() {
	if m == nil {
		return
	}
	m.segmentsServed.Inc()
}

// IncFragmentsDispatched counts a fragment handed out from source
// ("prioritized", "regular" or "filler").
func (m *Metrics) IncFragmentsDispatched(source string) {
	if m == nil {
		return
	}
	m.fragmentsDispatched.WithLabelValues(source).Inc()
}

func (m *Metrics) IncSupplyFailures() {
	if m == nil {
		return
	}
	m.supplyFailures.Inc()
}

// IncTicksDropped counts a tick that could not be delivered on ticker.
func (m *Metrics) IncTicksDropped(ticker string) {
	if m == nil {
		return
	}
	m.ticksDropped.WithLabelValues(ticker).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active stations).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
