package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type appMetrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	snapshotRefreshes *prometheus.CounterVec
	suggestions       *prometheus.CounterVec
	routeLinks        prometheus.Counter
}

func newAppMetrics() *appMetrics {
	m := &appMetrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rotambenim_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rotambenim_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		snapshotRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rotambenim_snapshot_refreshes_total",
			Help: "Place snapshot reloads by trigger or failure.",
		}, []string{"result"}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rotambenim_suggestions_total",
			Help: "Suggestion lists served per channel.",
		}, []string{"channel"}),
		routeLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rotambenim_route_links_total",
			Help: "Directions links built.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.snapshotRefreshes,
		m.suggestions,
		m.routeLinks,
	)
	return m
}

// metricsMiddleware labels requests by route template so ids stay out of
// the label set.
func (a *App) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		a.metrics.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		a.metrics.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (a *App) metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(a.metrics.registry, promhttp.HandlerOpts{Registry: a.metrics.registry}))
}
