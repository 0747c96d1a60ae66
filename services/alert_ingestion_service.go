package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend_fleetwatch/metrics"
	"backend_fleetwatch/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Исходы приема алерта
const (
	IngestAccepted    = "accepted"
	IngestThrottled   = "throttled"
	IngestUnknownUnit = "unknown-unit"
	IngestRejected    = "rejected"
)

var (
	// ErrInvalidAlertPayload в вебхуке нет unit_id (целое) или alert_name (строка)
	ErrInvalidAlertPayload = errors.New("некорректные данные алерта")
	// ErrAlertPersistence алерт не удалось сохранить
	ErrAlertPersistence = errors.New("ошибка сохранения алерта")
)

// IngestResult итог обработки одного вебхука
type IngestResult struct {
	Outcome string
	Alert   *models.Alert
	Ticket  *models.Ticket
	Err     error
}

// AlertIngestionService принимает алерты Wialon, подавляет дубли и запускает цепочку обработки
type AlertIngestionService struct {
	db       *gorm.DB
	units    *UnitRepository
	throttle ThrottleCache
	pipeline *AlertPipeline
	logger   *zap.Logger
	now      func() time.Time
}

// NewAlertIngestionService создает сервис приема алертов
func NewAlertIngestionService(db *gorm.DB, throttle ThrottleCache, pipeline *AlertPipeline, logger *zap.Logger) *AlertIngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertIngestionService{
		db:       db,
		units:    NewUnitRepository(db),
		throttle: throttle,
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest обрабатывает payload вебхука
func (s *AlertIngestionService) Ingest(ctx context.Context, payload models.Payload) (result IngestResult) {
	defer func() {
		metrics.AlertIngestTotal.WithLabelValues(result.Outcome).Inc()
	}()

	wialonID, ok := payload.Int64("unit_id")
	if !ok {
		return s.reject(payload, fmt.Errorf("%w: unit_id должен быть целым числом", ErrInvalidAlertPayload))
	}
	alertName, ok := payload["alert_name"].(string)
	if !ok || strings.TrimSpace(alertName) == "" {
		return s.reject(payload, fmt.Errorf("%w: alert_name обязателен", ErrInvalidAlertPayload))
	}

	log := s.logger.With(zap.Int64("wialon_id", wialonID), zap.String("alert_name", alertName))
	key := ThrottleKey(wialonID, alertName)

	if s.throttle.IsThrottled(ctx, key) {
		log.Info("alert throttled")
		return IngestResult{Outcome: IngestThrottled}
	}

	unit, err := s.units.FindByWialonID(ctx, wialonID)
	if err != nil {
		log.Error("failed to resolve unit", zap.Error(err))
		return IngestResult{Outcome: IngestRejected, Err: fmt.Errorf("%w: %v", ErrAlertPersistence, err)}
	}
	if unit == nil {
		log.Warn("alert for unknown wialon unit")
		return IngestResult{Outcome: IngestUnknownUnit}
	}

	// Метка ставится до записи: упавшая запись тоже подавляет повтор на время TTL
	if s.throttle.ShouldSuppress(ctx, key) {
		log.Info("alert throttled by concurrent delivery")
		return IngestResult{Outcome: IngestThrottled}
	}

	alert := &models.Alert{
		UnitID:    unit.ID,
		Type:      alertName,
		Payload:   payload,
		Timestamp: s.alertTimestamp(payload),
	}
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		log.Error("failed to persist alert", zap.Error(err))
		return IngestResult{Outcome: IngestRejected, Err: fmt.Errorf("%w: %v", ErrAlertPersistence, err)}
	}
	alert.Unit = unit

	ticket, err := s.pipeline.Dispatch(ctx, AlertReceived{Alert: alert})
	if err != nil {
		log.Error("failed to escalate alert", zap.Uint("alert_id", alert.ID), zap.Error(err))
		return IngestResult{Outcome: IngestRejected, Alert: alert, Err: err}
	}

	log.Info("alert accepted", zap.Uint("alert_id", alert.ID), zap.Uint("ticket_id", ticket.ID))
	return IngestResult{Outcome: IngestAccepted, Alert: alert, Ticket: ticket}
}

func (s *AlertIngestionService) reject(payload models.Payload, err error) IngestResult {
	s.logger.Warn("invalid wialon alert payload", zap.Any("payload", map[string]interface{}(payload)), zap.Error(err))
	return IngestResult{Outcome: IngestRejected, Err: err}
}

// alertTimestamp время события из поля t (unix секунды), иначе время приема
func (s *AlertIngestionService) alertTimestamp(payload models.Payload) time.Time {
	if t, ok := payload.Int64("t"); ok && t > 0 {
		return time.Unix(t, 0).UTC()
	}
	return s.now().UTC()
}
