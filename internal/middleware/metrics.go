package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prempal04/AyurSutra/pkg/metrics"
)

// Metrics records request counts and latency by route template, so
// /appointments/:id is one series however many ids are requested.
func Metrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.InFlightGauge.Inc()
		start := time.Now()
		c.Next()
		m.InFlightGauge.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
