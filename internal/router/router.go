package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// ProbeHandler registers endpoints outside the versioned API.
type ProbeHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine       *gin.Engine
	appointmentH Handler
	patientH     Handler
	healthH      ProbeHandler
	gatherer     prometheus.Gatherer
}

type RouterConfig struct {
	RateLimit   rate.Limit
	RateBurst   int
	CORSConfig  middleware.CORSConfig
	Timeout     time.Duration
	ServiceName string
	Tracing     bool
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(appointmentH, patientH Handler, healthH ProbeHandler, config RouterConfig) *Router {
	engine := gin.New()

	r := &Router{
		engine:       engine,
		appointmentH: appointmentH,
		patientH:     patientH,
		healthH:      healthH,
		gatherer:     config.Gatherer,
	}

	engine.Use(middleware.RequestID())
	if config.Tracing {
		engine.Use(middleware.Tracing(config.ServiceName))
	}
	engine.Use(
		middleware.Logger(config.Metrics),
		middleware.Recovery(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.Timeout}),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", handler.MetricsHandler(r.gatherer))

	api := r.engine.Group("/api/v1")
	r.appointmentH.RegisterRoutes(api)
	r.patientH.RegisterRoutes(api)

	r.engine.NoRoute(func(c *gin.Context) {
		httputil.RespondWithError(c, apperrors.NotFound("route not found", nil))
	})
	r.engine.HandleMethodNotAllowed = true
	r.engine.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, httputil.Response{
			Status:  httputil.StatusError,
			Message: "method not allowed",
		})
	})
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
