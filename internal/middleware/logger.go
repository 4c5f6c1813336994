package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Logger returns a middleware that logs HTTP requests and records their
// duration. m may be nil.
func Logger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		method := c.Request.Method
		statusCode := c.Writer.Status()

		if m != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(statusCode)
			m.RequestDuration.WithLabelValues(method, route, status).Observe(latency.Seconds())
			m.RequestTotal.WithLabelValues(method, route, status).Inc()
		}

		if raw != "" {
			path = path + "?" + raw
		}

		logger := log.Ctx(c.Request.Context())
		event := logger.Info()
		msg := "Request processed"
		switch {
		case statusCode >= 500:
			event, msg = logger.Error(), "Server error"
		case statusCode >= 400:
			event, msg = logger.Warn(), "Client error"
		}

		if traceID := TraceID(c); traceID != "" {
			event = event.Str("trace_id", traceID)
		}
		event.
			Str("method", method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", statusCode).
			Dur("duration", latency).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
