package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"backend_fleetwatch/models"
	"backend_fleetwatch/services"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody предел размера тела вебхука
const maxWebhookBody = 1 << 20

// AlertIngester прием алертов
type AlertIngester interface {
	Ingest(ctx context.Context, payload models.Payload) services.IngestResult
}

// WialonAlertsAPI вебхук алертов Wialon
type WialonAlertsAPI struct {
	ingester AlertIngester
}

// NewWialonAlertsAPI создает новый экземпляр WialonAlertsAPI
func NewWialonAlertsAPI(ingester AlertIngester) *WialonAlertsAPI {
	return &WialonAlertsAPI{ingester: ingester}
}

// RegisterRoutes регистрирует маршрут вебхука
func (api *WialonAlertsAPI) RegisterRoutes(r *gin.RouterGroup, handlers ...gin.HandlerFunc) {
	r.POST("/wialon/alerts", append(handlers, api.HandleAlert)...)
}

// HandleAlert принимает алерт. Wialon повторяет доставку при не-2xx ответе,
// поэтому дубли, троттлинг и неизвестные юниты отвечают 200.
func (api *WialonAlertsAPI) HandleAlert(c *gin.Context) {
	payload, err := readWebhookPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid data"})
		return
	}

	result := api.ingester.Ingest(c.Request.Context(), payload)
	switch result.Outcome {
	case services.IngestAccepted:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Alert processed"})
	case services.IngestThrottled:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Alert ignored due to throttling"})
	case services.IngestUnknownUnit:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Unit not tracked"})
	default:
		if errors.Is(result.Err, services.ErrInvalidAlertPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid data"})
			return
		}
		if result.Err != nil {
			_ = c.Error(result.Err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Internal server error"})
	}
}

// readWebhookPayload собирает плоский набор полей из query и тела (JSON или form).
// Поля тела перекрывают поля query.
func readWebhookPayload(c *gin.Context) (models.Payload, error) {
	payload := models.Payload{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			payload[key] = values[0]
		}
	}

	if strings.HasPrefix(c.ContentType(), "application/json") {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return payload, nil
		}

		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		var fields map[string]interface{}
		if err := decoder.Decode(&fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			payload[k] = v
		}
		return payload, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.Request.ParseMultipartForm(maxWebhookBody); err != nil {
			return nil, err
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			payload[key] = values[0]
		}
	}
	return payload, nil
}
