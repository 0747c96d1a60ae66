package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"backend_fleetwatch/services"

	"github.com/gin-gonic/gin"
)

// TicketsAPI просмотр тикетов
type TicketsAPI struct {
	tickets *services.TicketService
	export  *services.ExportService
}

// NewTicketsAPI создает новый экземпляр TicketsAPI
func NewTicketsAPI(tickets *services.TicketService, export *services.ExportService) *TicketsAPI {
	return &TicketsAPI{tickets: tickets, export: export}
}

// RegisterRoutes регистрирует маршруты тикетов
func (api *TicketsAPI) RegisterRoutes(r *gin.RouterGroup) {
	tickets := r.Group("/tickets")
	{
		tickets.GET("", api.GetTickets)
		tickets.GET("/:id", api.GetTicket)
		tickets.GET("/:id/pdf", api.DownloadTicketPDF)
	}
}

// GetTickets список тикетов, новые первыми
func (api *TicketsAPI) GetTickets(c *gin.Context) {
	views, err := api.tickets.List(c.Request.Context(), scopeUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка получения тикетов: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"items": views,
			"total": len(views),
		},
	})
}

// GetTicket один тикет
func (api *TicketsAPI) GetTicket(c *gin.Context) {
	view, ok := api.loadTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": view})
}

// DownloadTicketPDF карточка тикета в pdf
func (api *TicketsAPI) DownloadTicketPDF(c *gin.Context) {
	view, ok := api.loadTicket(c)
	if !ok {
		return
	}

	data, err := api.export.TicketPDF(*view)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка формирования pdf: " + err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", view.Code+".pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (api *TicketsAPI) loadTicket(c *gin.Context) (*services.TicketView, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Неверный ID тикета"})
		return nil, false
	}

	view, err := api.tickets.Get(c.Request.Context(), uint(id), scopeUserID(c))
	if errors.Is(err, services.ErrTicketNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Тикет не найден"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка получения тикета: " + err.Error()})
		return nil, false
	}
	return view, true
}
