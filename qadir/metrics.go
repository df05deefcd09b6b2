package qadir

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "qadir"

// metrics holds the bot's prometheus collectors. Each Qadir gets its
// own registry.
type metrics struct {
	registry *prometheus.Registry

	interactions     *prometheus.CounterVec
	interactionErrs  *prometheus.CounterVec
	hangarEdits      *prometheus.CounterVec
	activities       *prometheus.CounterVec
	proposalsClosed  prometheus.Counter
	apiRequests      *prometheus.CounterVec
	interactionTimes *prometheus.HistogramVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &metrics{
		registry: reg,
		interactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "interactions_total",
			Help:      "Discord interactions received, by type and name",
		}, []string{"type", "name"}),
		interactionErrs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "interaction_errors_total",
			Help:      "Discord interactions that failed, by type and name",
		}, []string{"type", "name"}),
		interactionTimes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "interaction_duration_seconds",
			Help:      "Time spent handling discord interactions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		hangarEdits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hangar_embed_edits_total",
			Help:      "Hangar status embed edits, by result",
		}, []string{"status"}),
		activities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "activity_sessions_total",
			Help:      "Application sessions started and stopped",
		}, []string{"action"}),
		proposalsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proposals_closed_total",
			Help:      "Proposals closed after their voting period",
		}),
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "api_requests_total",
			Help:      "Admin API requests, by route and status code",
		}, []string{"route", "code"}),
	}
}

// registerDiscord exposes the gateway connection counters
func (m *metrics) registerDiscord(d *Discord) {
	f := promauto.With(m.registry)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "discord_connects_total",
		Help:      "Discord gateway connects",
	}, func() float64 { return float64(d.metricConnects.Load()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "discord_disconnects_total",
		Help:      "Discord gateway disconnects",
	}, func() float64 { return float64(d.metricDisconnects.Load()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "discord_connected",
		Help:      "1 when the discord gateway is connected",
	}, func() float64 {
		if d.connected.Load() {
			return 1
		}
		return 0
	})
}

// registerCache exposes the cache hit/miss counters
func (m *metrics) registerCache(c *Cache) {
	f := promauto.With(m.registry)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cache_hits_total",
		Help:      "JSON cache hits",
	}, func() float64 {
		hits, _ := c.Stats()
		return float64(hits)
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cache_misses_total",
		Help:      "JSON cache misses",
	}, func() float64 {
		_, misses := c.Stats()
		return float64(misses)
	})
}
