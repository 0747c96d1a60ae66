package api

import (
	"net/http"

	"backend_fleetwatch/services"

	"github.com/gin-gonic/gin"
)

// SyncAPI ручной запуск синхронизации юнитов
type SyncAPI struct {
	syncer services.Syncer
}

// NewSyncAPI создает новый экземпляр SyncAPI
func NewSyncAPI(syncer services.Syncer) *SyncAPI {
	return &SyncAPI{syncer: syncer}
}

// RegisterRoutes регистрирует маршруты синхронизации
func (api *SyncAPI) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sync/units", api.SyncUnits)
}

// SyncUnits выполняет синхронизацию и возвращает итог
func (api *SyncAPI) SyncUnits(c *gin.Context) {
	result := api.syncer.Sync(c.Request.Context())

	if result.Aborted {
		c.JSON(http.StatusBadGateway, gin.H{
			"status": "error",
			"error":  result.Message,
			"data":   result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   result,
	})
}
