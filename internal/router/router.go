package router

import (
	"github.com/gin-gonic/gin"

	healthH "github.com/careloop/outreach-api/internal/handler/health"
	prometheusH "github.com/careloop/outreach-api/internal/handler/prometheus"
	"github.com/careloop/outreach-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
}

func (c Config) withDefaults() Config {
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 50
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 100
	}
	return c
}

type Router struct {
	engine   *gin.Engine
	health   *healthH.Handler
	prom     *prometheusH.Handler
	waitlist Handler
	recall   Handler
}

func NewRouter(health *healthH.Handler, prom *prometheusH.Handler, waitlist, recall Handler, cfg Config) *Router {
	gin.SetMode(gin.ReleaseMode)
	cfg = cfg.withDefaults()

	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		prom.Middleware(),
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	engine.Use(rateLimiter.RateLimit())

	return &Router{
		engine:   engine,
		health:   health,
		prom:     prom,
		waitlist: waitlist,
		recall:   recall,
	}
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine.Group(""))
	r.engine.GET("/metrics", r.prom.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(middleware.Tenant())
	r.waitlist.RegisterRoutes(api)
	r.recall.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
