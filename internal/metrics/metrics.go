package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	CartsCreated         *prometheus.CounterVec
	CartCreateConflicts  prometheus.Counter
	LineItemsAdded       *prometheus.CounterVec
	CartsClaimed         *prometheus.CounterVec
	CartsExpired         prometheus.Counter
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CartsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storecart_carts_created_total",
			Help: "Carts created by locate or add-to-cart, by owner kind.",
		}, []string{"owner"}),
		CartCreateConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "storecart_cart_create_conflicts_total",
			Help: "Cart inserts that lost a uniqueness race and were retried as a lookup.",
		}),
		LineItemsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storecart_line_items_added_total",
			Help: "Add-to-cart calls, by whether they created a line or merged into one.",
		}, []string{"result"}),
		CartsClaimed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storecart_carts_claimed_total",
			Help: "Anonymous carts claimed by a customer, by outcome.",
		}, []string{"outcome"}),
		CartsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "storecart_carts_expired_total",
			Help: "Anonymous carts marked expired by the sweep.",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		}),
	}
}

// GinMiddleware records request count, latency and in-flight requests
// labelled by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
