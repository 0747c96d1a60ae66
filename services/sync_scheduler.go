package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Syncer выполняет один проход синхронизации
type Syncer interface {
	Sync(ctx context.Context) SyncResult
}

// SyncScheduler запускает синхронизацию юнитов по cron расписанию (с секундами).
// Новый запуск пропускается, пока предыдущий не завершился.
type SyncScheduler struct {
	syncer   Syncer
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
	entryID  cron.EntryID
}

// NewSyncScheduler создает планировщик синхронизации
func NewSyncScheduler(syncer Syncer, schedule string, timeout time.Duration, logger *zap.Logger) *SyncScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &SyncScheduler{
		syncer:   syncer,
		schedule: schedule,
		timeout:  timeout,
		cron:     c,
		logger:   logger,
	}
}

// Start регистрирует задачу и запускает планировщик
func (s *SyncScheduler) Start() error {
	id, err := s.cron.AddFunc(s.schedule, s.RunOnce)
	if err != nil {
		return fmt.Errorf("failed to add sync job (%s): %w", s.schedule, err)
	}
	s.entryID = id

	s.cron.Start()
	s.logger.Info("sync scheduler started", zap.String("schedule", s.schedule), zap.Timep("next_run", s.NextRun()))
	return nil
}

// Stop останавливает планировщик и ждет завершения текущего запуска
func (s *SyncScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sync scheduler stopped")
}

// NextRun время следующего запуска, nil если планировщик не запущен
func (s *SyncScheduler) NextRun() *time.Time {
	if s.entryID == 0 {
		return nil
	}
	next := s.cron.Entry(s.entryID).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// RunOnce выполняет синхронизацию с таймаутом
func (s *SyncScheduler) RunOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result := s.syncer.Sync(ctx)
	if result.HasErrors() {
		s.logger.Warn("scheduled sync finished with errors",
			zap.String("message", result.Message),
			zap.Int("failed", result.Failed),
		)
	}
}
