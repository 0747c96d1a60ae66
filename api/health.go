package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthChecker проверка внешней зависимости
type HealthChecker interface {
	IsHealthy(ctx context.Context) error
}

// HealthAPI проверки работоспособности
type HealthAPI struct {
	db      *gorm.DB
	wialon  HealthChecker
	version string
	timeout time.Duration
}

// NewHealthAPI создает новый экземпляр HealthAPI
func NewHealthAPI(db *gorm.DB, wialon HealthChecker, version string) *HealthAPI {
	return &HealthAPI{db: db, wialon: wialon, version: version, timeout: 5 * time.Second}
}

// RegisterRoutes регистрирует маршруты проверок
func (api *HealthAPI) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ping", api.Ping)
	r.GET("/health", api.Health)
}

// Ping liveness
func (api *HealthAPI) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "pong",
	})
}

// Health readiness: база данных и Wialon
func (api *HealthAPI) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), api.timeout)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := api.pingDatabase(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if api.wialon != nil {
		if err := api.wialon.IsHealthy(ctx); err != nil {
			checks["wialon"] = err.Error()
			healthy = false
		} else {
			checks["wialon"] = "ok"
		}
	}

	status := http.StatusOK
	body := gin.H{"status": "success", "version": api.version, "checks": checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "error"
	}
	c.JSON(status, body)
}

func (api *HealthAPI) pingDatabase(ctx context.Context) error {
	sqlDB, err := api.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
