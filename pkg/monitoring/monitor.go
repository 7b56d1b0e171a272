package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// ActiveCalls tracks in-flight call workers; it must never exceed the
	// configured pool size.
	ActiveCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialer_active_calls",
			Help: "Number of call attempts currently in progress",
		},
	)

	CallAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_call_attempts_total",
			Help: "Finalized call attempts by outcome",
		},
		[]string{"status"},
	)

	CallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dialer_call_duration_seconds",
			Help:    "Wall-clock duration of call attempts",
			Buckets: []float64{15, 30, 60, 120, 300, 600},
		},
	)

	ClarificationRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_clarification_rounds_total",
			Help: "Clarification rounds spent across all turns",
		},
	)

	SinkRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_sink_retries_total",
			Help: "Result sink delivery retries",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ActiveCalls)
	prometheus.MustRegister(CallAttemptsTotal)
	prometheus.MustRegister(CallDuration)
	prometheus.MustRegister(ClarificationRounds)
	prometheus.MustRegister(SinkRetries)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
