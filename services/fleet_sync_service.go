package services

import (
	"context"
	"fmt"
	"time"

	"backend_fleetwatch/metrics"
	"backend_fleetwatch/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Сообщения результата синхронизации
const (
	SyncMessageCompleted = "sync completed"
	SyncMessageNoUnits   = "no units to sync"
)

// SyncResult итог одного запуска синхронизации.
// Всегда выполняется created + updated + unchanged + failed == числу записей Wialon,
// кроме прерванного запуска, где все счетчики нулевые.
type SyncResult struct {
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Message   string        `json:"message"`
	Aborted   bool          `json:"aborted"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Total количество обработанных записей
func (r SyncResult) Total() int {
	return r.Created + r.Updated + r.Unchanged + r.Failed
}

// HasErrors true, если запуск прерван или хотя бы одна запись не сохранилась
func (r SyncResult) HasErrors() bool {
	return r.Aborted || r.Failed > 0
}

// FleetSyncService сверяет локальные юниты со списком Wialon
type FleetSyncService struct {
	db     *gorm.DB
	client WialonClientInterface
	units  *UnitRepository
	retry  *RetryExecutor
	logger *zap.Logger
	now    func() time.Time
}

// NewFleetSyncService создает сервис синхронизации
func NewFleetSyncService(db *gorm.DB, client WialonClientInterface, retry *RetryExecutor, logger *zap.Logger) *FleetSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FleetSyncService{
		db:     db,
		client: client,
		units:  NewUnitRepository(db),
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// Sync выполняет один полный проход синхронизации
func (s *FleetSyncService) Sync(ctx context.Context) (result SyncResult) {
	started := s.now()
	defer func() {
		result.StartedAt = started
		result.Duration = s.now().Sub(started)
		metrics.SyncDuration.Observe(result.Duration.Seconds())
		s.record(result)
	}()

	session, err := Retry(ctx, s.retry, "wialon.login", s.client.Authenticate)
	if err != nil {
		return s.abort(fmt.Sprintf("sync aborted: authentication failed: %v", err), err)
	}

	records, err := Retry(ctx, s.retry, "wialon.fetch_units", func(ctx context.Context) ([]RawUnitRecord, error) {
		return s.client.FetchUnits(ctx, session.SID)
	})
	if err != nil {
		return s.abort(fmt.Sprintf("sync aborted: fetching units failed: %v", err), err)
	}

	if len(records) == 0 {
		result.Message = SyncMessageNoUnits
		return result
	}

	var counts SyncResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.units.WithTx(tx)
		for _, record := range records {
			// Отмена контекста прерывает весь пакет
			if err := ctx.Err(); err != nil {
				return err
			}

			outcome, err := repo.Upsert(ctx, TransformUnit(record))
			if err != nil {
				counts.Failed++
				s.logger.Error("failed to upsert unit",
					zap.Int64("wialon_id", record.ID),
					zap.String("name", record.Name),
					zap.Error(err),
				)
				continue
			}

			switch outcome {
			case UpsertCreated:
				counts.Created++
			case UpsertUpdated:
				counts.Updated++
			default:
				counts.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return s.abort(fmt.Sprintf("sync error: transaction rolled back: %v", err), err)
	}

	result.Created = counts.Created
	result.Updated = counts.Updated
	result.Unchanged = counts.Unchanged
	result.Failed = counts.Failed
	result.Message = SyncMessageCompleted
	return result
}

func (s *FleetSyncService) abort(message string, err error) SyncResult {
	s.logger.Error("wialon sync aborted", zap.String("message", message), zap.Error(err))
	return SyncResult{
		Message: message,
		Aborted: true,
	}
}

// record пишет итог в лог и метрики
func (s *FleetSyncService) record(result SyncResult) {
	label := "completed"
	switch {
	case result.Aborted:
		label = "aborted"
	case result.Message == SyncMessageNoUnits:
		label = "empty"
	}
	metrics.SyncRunsTotal.WithLabelValues(label).Inc()
	metrics.SyncUnitsTotal.WithLabelValues("created").Add(float64(result.Created))
	metrics.SyncUnitsTotal.WithLabelValues("updated").Add(float64(result.Updated))
	metrics.SyncUnitsTotal.WithLabelValues("unchanged").Add(float64(result.Unchanged))
	metrics.SyncUnitsTotal.WithLabelValues("failed").Add(float64(result.Failed))

	s.logger.Info("wialon sync finished",
		zap.String("result", label),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
		zap.String("message", result.Message),
		zap.Duration("duration", result.Duration),
	)
}

// TransformUnit строит модель юнита из записи Wialon и её последнего сообщения
func TransformUnit(record RawUnitRecord) *models.Unit {
	lmsg := record.LastMessage
	pos, _ := lmsg["pos"].(map[string]interface{})
	params := lmsg["p"]

	unit := &models.Unit{
		WialonID:    record.ID,
		Name:        record.Name,
		IMEI:        record.IMEI,
		UnitType:    record.UnitType,
		Plates:      record.Plates,
		PhoneNumber: record.PhoneNumber,
	}

	if pos != nil {
		unit.Latitude = toNullDecimal(pos["y"])
		unit.Longitude = toNullDecimal(pos["x"])
		unit.Altitude = intPtr(pos["z"])
		unit.Orientation = intPtr(pos["c"])
		unit.GPSSignal = intPtr(pos["sc"])
		if speed, ok := toInt64(pos["s"]); ok {
			unit.Speed = int(speed)
		}
	}

	if t, ok := toInt64(lmsg["t"]); ok && t > 0 {
		last := time.Unix(t, 0).UTC()
		unit.LastMessage = &last
	}

	unit.MainBattery = floatPtr(ParameterValue(params, "pwr_ext", nil))
	unit.BackupBattery = floatPtr(ParameterValue(params, "pwr_int", nil))
	unit.GSMQuality = intPtr(ParameterValue(params, "gsm", nil))
	unit.Odometer = int64Ptr(firstPresent(
		record.Raw["cnm_km"],
		ParameterValue(params, "mileage", nil),
		ParameterValue(params, "odometer", nil),
	))
	unit.EngineStatus = toBool(firstPresent(
		ParameterValue(params, "io_1", nil),
		ParameterValue(params, "ign", nil),
	))
	unit.PanicButton = toBool(ParameterValue(params, "io_9", nil))
	unit.EngineLockup = toBool(ParameterValue(params, "io_179", nil))

	return unit
}
