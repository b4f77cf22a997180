package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_http_requests_total",
			Help: "Total number of HTTP requests processed by the consultation service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consult_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consult_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consult_ws_active_rooms",
			Help: "Number of consultation rooms with at least one member.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_ws_events_total",
			Help: "Total number of websocket events by type.",
		},
		[]string{"event"},
	)
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_gate_decisions_total",
			Help: "Session gate decisions by reason.",
		},
		[]string{"reason"},
	)
	paymentPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_payment_polls_total",
			Help: "External payment status polls by outcome.",
		},
		[]string{"outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consult_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsActiveRooms,
		wsEventsTotal,
		gateDecisionsTotal,
		paymentPollsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latency per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive()            { wsActiveConnections.Inc() }
func DecWSActive()            { wsActiveConnections.Dec() }
func SetActiveRooms(n int)    { wsActiveRooms.Set(float64(n)) }
func IncWSEvent(event string) { wsEventsTotal.WithLabelValues(event).Inc() }

func IncGateDecision(reason string) { gateDecisionsTotal.WithLabelValues(reason).Inc() }

func IncPaymentPoll(outcome string) { paymentPollsTotal.WithLabelValues(outcome).Inc() }

func IncAMQPPublishError() { amqpPublishErrorsTotal.Inc() }
