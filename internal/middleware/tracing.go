package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. Health and metrics probes are
// not traced.
func Tracing(service string) gin.HandlerFunc {
	return otelgin.Middleware(service,
		otelgin.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/health/live", "/health/ready", "/metrics":
				return false
			}
			return true
		}),
	)
}

// TraceID returns the id of the span active in c, or "".
func TraceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
