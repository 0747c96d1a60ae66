package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"backend_fleetwatch/middleware"
	"backend_fleetwatch/models"
	"backend_fleetwatch/services"

	"github.com/gin-gonic/gin"
)

// UnitsAPI список юнитов и выгрузка
type UnitsAPI struct {
	units  *services.UnitRepository
	export *services.ExportService
	now    func() time.Time
}

// NewUnitsAPI создает новый экземпляр UnitsAPI
func NewUnitsAPI(units *services.UnitRepository, export *services.ExportService) *UnitsAPI {
	return &UnitsAPI{units: units, export: export, now: time.Now}
}

// RegisterRoutes регистрирует маршруты юнитов. Выгрузка доступна только администраторам.
func (api *UnitsAPI) RegisterRoutes(r *gin.RouterGroup) {
	units := r.Group("/units")
	{
		units.GET("", api.GetUnits)
		units.GET("/export", middleware.RequireRole(models.UserRoleAdmin), api.ExportUnits)
	}
}

// UnitItem юнит в списке
type UnitItem struct {
	ID          uint       `json:"id"`
	WialonID    int64      `json:"wialon_id"`
	Name        string     `json:"name"`
	Plates      *string    `json:"plates"`
	Status      string     `json:"status"`
	Phone       *string    `json:"phone"`
	Speed       int        `json:"speed"`
	LastMessage *time.Time `json:"last_message"`
	Latitude    *string    `json:"latitude"`
	Longitude   *string    `json:"longitude"`
}

// GetUnits список юнитов с поиском по имени и номеру и сводкой по статусам
func (api *UnitsAPI) GetUnits(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "12"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 12
	}

	filter := services.UnitFilter{
		Search: c.Query("search"),
		UserID: scopeUserID(c),
		Page:   page,
		Limit:  limit,
	}
	ctx := c.Request.Context()
	now := api.now()

	units, total, err := api.units.List(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка получения юнитов: " + err.Error()})
		return
	}
	stats, err := api.units.Stats(ctx, filter, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка подсчета статистики: " + err.Error()})
		return
	}

	items := make([]UnitItem, 0, len(units))
	for i := range units {
		items = append(items, newUnitItem(&units[i], now))
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"items":       items,
			"stats":       stats,
			"total":       total,
			"page":        page,
			"limit":       limit,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// ExportUnits выгружает все юниты в xlsx
func (api *UnitsAPI) ExportUnits(c *gin.Context) {
	units, _, err := api.units.List(c.Request.Context(), services.UnitFilter{Search: c.Query("search")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка получения юнитов: " + err.Error()})
		return
	}

	data, err := api.export.UnitsXLSX(units)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка формирования файла: " + err.Error()})
		return
	}

	filename := fmt.Sprintf("units_%s.xlsx", api.now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func newUnitItem(u *models.Unit, now time.Time) UnitItem {
	item := UnitItem{
		ID:          u.ID,
		WialonID:    u.WialonID,
		Name:        u.Name,
		Plates:      u.Plates,
		Status:      u.Status(now),
		Phone:       u.PhoneNumber,
		Speed:       u.Speed,
		LastMessage: u.LastMessage,
	}
	if u.Latitude.Valid {
		lat := u.Latitude.Decimal.String()
		item.Latitude = &lat
	}
	if u.Longitude.Valid {
		lon := u.Longitude.Decimal.String()
		item.Longitude = &lon
	}
	return item
}

// scopeUserID для роли user ограничивает выборку назначенными юнитами
func scopeUserID(c *gin.Context) *uint {
	userID, role := middleware.CurrentUser(c)
	if role == models.UserRoleAdmin {
		return nil
	}
	return &userID
}
