package services

import (
	"context"
	"fmt"

	"backend_fleetwatch/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TicketEscalator создает тикет на каждый сохраненный алерт
type TicketEscalator struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTicketEscalator создает эскалатор
func NewTicketEscalator(db *gorm.DB, logger *zap.Logger) *TicketEscalator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketEscalator{db: db, logger: logger}
}

// HandleAlertReceived создает открытый тикет и возвращает TicketCreated
// с подгруженными юнитом и его пользователями
func (e *TicketEscalator) HandleAlertReceived(ctx context.Context, event AlertReceived) (*TicketCreated, error) {
	if event.Alert == nil || event.Alert.ID == 0 {
		return nil, fmt.Errorf("алерт не сохранен")
	}

	ticket := &models.Ticket{
		AlertID: event.Alert.ID,
		Status:  models.TicketStatusOpen,
	}
	if err := e.db.WithContext(ctx).Create(ticket).Error; err != nil {
		return nil, fmt.Errorf("ошибка создания тикета: %w", err)
	}

	var loaded models.Ticket
	err := e.db.WithContext(ctx).
		Preload("Alert.Unit.Users").
		First(&loaded, ticket.ID).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки тикета %d: %w", ticket.ID, err)
	}

	e.logger.Info("ticket created from alert",
		zap.Uint("ticket_id", loaded.ID),
		zap.Uint("alert_id", event.Alert.ID),
	)
	return &TicketCreated{Ticket: &loaded}, nil
}
