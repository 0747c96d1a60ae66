package api

import (
	"time"

	"backend_fleetwatch/config"
	"backend_fleetwatch/middleware"
	"backend_fleetwatch/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps зависимости HTTP слоя
type RouterDeps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Redis   *redis.Client
	Auth    *middleware.AuthMiddleware
	Health  *HealthAPI
	Alerts  *WialonAlertsAPI
	Sync    *SyncAPI
	Units   *UnitsAPI
	Tickets *TicketsAPI
}

// NewRouter собирает gin.Engine со всеми маршрутами
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(deps.Logger))
	r.Use(cors.New(corsConfig(cfg.CORS)))

	deps.Health.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/" + cfg.App.Version)

	// Wialon не передает токен, вебхук защищен только лимитом
	webhookLimit := middleware.WebhookRateLimit(deps.Redis, cfg.Alerts.WebhookRateLimit, cfg.Alerts.WebhookWindow, deps.Logger)
	deps.Alerts.RegisterRoutes(v1, webhookLimit)

	protected := v1.Group("")
	protected.Use(deps.Auth.RequireAuth())
	{
		deps.Units.RegisterRoutes(protected)
		deps.Tickets.RegisterRoutes(protected)

		admin := protected.Group("")
		admin.Use(middleware.RequireRole(models.UserRoleAdmin))
		deps.Sync.RegisterRoutes(admin)
	}

	return r
}

func corsConfig(c config.CORSConfig) cors.Config {
	cc := cors.DefaultConfig()
	if len(c.AllowedOrigins) == 0 || (len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.AllowedOrigins
		cc.AllowCredentials = c.AllowCredentials
	}
	if len(c.AllowedMethods) > 0 {
		cc.AllowMethods = c.AllowedMethods
	}
	if len(c.AllowedHeaders) > 0 {
		cc.AllowHeaders = c.AllowedHeaders
	}
	if c.MaxAge > 0 {
		cc.MaxAge = time.Duration(c.MaxAge) * time.Second
	}
	return cc
}
