package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messenger_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsInboundTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_ws_inbound_events_total",
		Help: "Total number of inbound websocket events by type",
	}, []string{"type"})
	WsEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_ws_broadcast_events_total",
		Help: "Total number of broadcast deliveries by event type",
	}, []string{"type"})
	WsBroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_ws_broadcast_drops_total",
		Help: "Broadcast deliveries dropped due to a full client buffer",
	})
	MessagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_messages_sent_total",
		Help: "Total number of persisted messages",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, WsInboundTotal, WsEventsTotal, WsBroadcastDrops,
		MessagesSentTotal, HttpRequestsTotal, HttpRequestDuration,
	)
}

func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
