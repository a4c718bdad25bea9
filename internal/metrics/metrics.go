package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry with the planner's metrics
type Collector struct {
	reg *prometheus.Registry

	Journeys     *prometheus.CounterVec // priority, outcome: found|not_found
	ScanDuration *prometheus.HistogramVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	NetworkStops       prometheus.Gauge
	NetworkConnections prometheus.Gauge
	NetworkLoads       *prometheus.CounterVec // result: ok|error

	EventsPublished   prometheus.Counter
	EventPublishErrs  prometheus.Counter
	NATSConnected     prometheus.Gauge
	RateLimitRejected prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Journeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connscan_journeys_total",
			Help: "Journey searches by priority and outcome.",
		}, []string{"priority", "outcome"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connscan_scan_duration_seconds",
			Help:    "Duration of a single connection scan.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"priority"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connscan_cache_hits_total",
			Help: "Journeys served from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connscan_cache_misses_total",
			Help: "Journey cache misses.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connscan_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connscan_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		NetworkStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connscan_network_stops",
			Help: "Stops in the loaded timetable.",
		}),
		NetworkConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connscan_network_connections",
			Help: "Connections in the loaded timetable.",
		}),
		NetworkLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connscan_network_loads_total",
			Help: "Timetable loads by result.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connscan_events_published_total",
			Help: "Journey events published to NATS.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connscan_event_publish_errors_total",
			Help: "Journey event publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connscan_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		RateLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connscan_rate_limit_rejected_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		c.Journeys, c.ScanDuration,
		c.CacheHits, c.CacheMisses,
		c.HTTPRequests, c.HTTPRequestDuration,
		c.NetworkStops, c.NetworkConnections, c.NetworkLoads,
		c.EventsPublished, c.EventPublishErrs, c.NATSConnected,
		c.RateLimitRejected,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the private registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// ObserveScan records one engine run
func (c *Collector) ObserveScan(priority string, d time.Duration, found bool) {
	outcome := "not_found"
	if found {
		outcome = "found"
	}
	c.Journeys.WithLabelValues(priority, outcome).Inc()
	c.ScanDuration.WithLabelValues(priority).Observe(d.Seconds())
}

// ObserveRequest records one HTTP request. route is the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveCache records a cache lookup
func (c *Collector) ObserveCache(hit bool) {
	if hit {
		c.CacheHits.Inc()
		return
	}
	c.CacheMisses.Inc()
}

// ObserveLoad records a timetable load
func (c *Collector) ObserveLoad(stops, connections int, err error) {
	if err != nil {
		c.NetworkLoads.WithLabelValues("error").Inc()
		return
	}
	c.NetworkLoads.WithLabelValues("ok").Inc()
	c.NetworkStops.Set(float64(stops))
	c.NetworkConnections.Set(float64(connections))
}

// The methods below satisfy publisher.PublisherMetrics

func (c *Collector) NATSPublishedInc()  { c.EventsPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.EventPublishErrs.Inc() }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
