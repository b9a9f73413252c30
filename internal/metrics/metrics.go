// Package metrics holds the Prometheus collectors for the queue service.
// Each Collector owns its registry so tests can build as many as they need.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	bookings      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	noShows       *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepErrors   prometheus.Counter
	waitEstimate  *prometheus.HistogramVec
	seatsFull     *prometheus.CounterVec
	messages      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		bookings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_entries_booked_total",
			Help: "Entries booked per location and priority",
		}, []string{"location", "priority"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_entry_transitions_total",
			Help: "Status transitions applied, by target status",
		}, []string{"status"}),
		noShows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_entries_no_show_total",
			Help: "Entries marked no-show by the sweeper",
		}, []string{"location"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "queue_no_show_sweep_duration_seconds",
			Help:    "Duration of one no-show sweep",
			Buckets: prometheus.DefBuckets,
		}),
		sweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "queue_no_show_sweep_errors_total",
			Help: "Sweeps that ended with at least one error",
		}),
		waitEstimate: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queue_wait_estimate_minutes",
			Help:    "Estimated wait returned to callers",
			Buckets: []float64{0, 5, 10, 15, 30, 45, 60, 90, 120},
		}, []string{"location"}),
		seatsFull: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_seat_pool_full_total",
			Help: "Bookings that found no free seat",
		}, []string{"location"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_messages_sent_total",
			Help: "Requester messages by channel and delivery result",
		}, []string{"channel", "result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) EntryBooked(locationID, priority string) {
	c.bookings.WithLabelValues(locationID, priority).Inc()
}

func (c *Collector) EntryTransitioned(status string) {
	c.transitions.WithLabelValues(status).Inc()
}

func (c *Collector) EntryNoShow(locationID string) {
	c.noShows.WithLabelValues(locationID).Inc()
}

func (c *Collector) SweepFinished(d time.Duration, failed bool) {
	c.sweepDuration.Observe(d.Seconds())
	if failed {
		c.sweepErrors.Inc()
	}
}

func (c *Collector) WaitEstimated(locationID string, minutes int) {
	c.waitEstimate.WithLabelValues(locationID).Observe(float64(minutes))
}

func (c *Collector) SeatPoolFull(locationID string) {
	c.seatsFull.WithLabelValues(locationID).Inc()
}

func (c *Collector) MessageSent(channel string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	c.messages.WithLabelValues(channel, result).Inc()
}

func (c *Collector) RequestServed(method string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}
