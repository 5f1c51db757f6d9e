package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notifier/internal/handler"
	"github.com/jwalitptl/notifier/internal/handler/prometheus"
	"github.com/jwalitptl/notifier/internal/middleware"
	"github.com/jwalitptl/notifier/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine        *gin.Engine
	h             *handler.Handler
	notifications Handler
	metrics       *prometheus.Handler
	rateLimiter   *middleware.RateLimiter
}

type RouterConfig struct {
	// RateLimit of zero disables rate limiting.
	RateLimit rate.Limit
	RateBurst int
	// CORSOrigins lists the browser origins allowed to call the API. Empty
	// disables CORS headers.
	CORSOrigins []string
}

func NewRouter(
	h *handler.Handler,
	notifications Handler,
	metrics *prometheus.Handler,
	log *logger.Logger,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:        engine,
		h:             h,
		notifications: notifications,
		metrics:       metrics,
	}
	if config.RateLimit > 0 {
		r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
	}

	// Add core middlewares
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		metrics.Middleware(),
	)

	if len(config.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowOrigins = config.CORSOrigins
		engine.Use(middleware.CORS(cors))
	}

	return r
}

func (r *Router) Setup() {
	r.setupHealthCheck(r.engine.Group(""))

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	if r.rateLimiter != nil {
		api.Use(r.rateLimiter.RateLimit())
	}

	r.notifications.RegisterRoutes(api)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	rg.GET("/metrics", r.h.MetricsHandler)

	health := rg.Group("/health")
	{
		health.GET("", r.h.LivenessCheck)
		health.GET("/live", r.h.LivenessCheck)
		health.GET("/ready", r.h.ReadinessCheck)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
