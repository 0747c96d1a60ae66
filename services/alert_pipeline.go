package services

import (
	"context"
	"fmt"

	"backend_fleetwatch/models"

	"go.uber.org/zap"
)

// AlertReceived событие: алерт сохранен
type AlertReceived struct {
	Alert *models.Alert
}

// TicketCreated событие: тикет создан и закоммичен.
// Ticket загружен вместе с Alert.Unit.Users.
type TicketCreated struct {
	Ticket *models.Ticket
}

// AlertHandler обработчик AlertReceived
type AlertHandler interface {
	HandleAlertReceived(ctx context.Context, event AlertReceived) (*TicketCreated, error)
}

// TicketHandler обработчик TicketCreated. Ошибки доставки остаются внутри отчета.
type TicketHandler interface {
	HandleTicketCreated(ctx context.Context, event TicketCreated) FanoutReport
}

// AlertPipeline фиксированная цепочка: эскалация в тикет, затем рассылка уведомлений
type AlertPipeline struct {
	escalator AlertHandler
	fanout    TicketHandler
	logger    *zap.Logger
}

// NewAlertPipeline создает цепочку обработки алерта
func NewAlertPipeline(escalator AlertHandler, fanout TicketHandler, logger *zap.Logger) *AlertPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertPipeline{
		escalator: escalator,
		fanout:    fanout,
		logger:    logger,
	}
}

// Dispatch проводит AlertReceived через цепочку. Возвращает ошибку только эскалации:
// рассылка начинается после коммита тикета и на результат не влияет.
func (p *AlertPipeline) Dispatch(ctx context.Context, event AlertReceived) (*models.Ticket, error) {
	created, err := p.escalator.HandleAlertReceived(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("ошибка эскалации алерта %d: %w", event.Alert.ID, err)
	}

	// Тикет уже закоммичен: обрыв соединения вебхука не должен отменять рассылку
	report := p.fanout.HandleTicketCreated(context.WithoutCancel(ctx), *created)
	p.logger.Info("alert dispatched",
		zap.Uint("alert_id", event.Alert.ID),
		zap.Uint("ticket_id", created.Ticket.ID),
		zap.Int("deliveries", len(report.Deliveries)),
		zap.Int("failed_deliveries", report.FailedCount()),
	)
	return created.Ticket, nil
}
