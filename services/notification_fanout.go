package services

import (
	"context"
	"fmt"
	"time"

	"backend_fleetwatch/config"
	"backend_fleetwatch/metrics"
	"backend_fleetwatch/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventTicketCreated имя события в real-time каналах
const EventTicketCreated = "ticket.created"

// Delivery одна попытка доставки
type Delivery struct {
	Sink   string
	Target string
	Err    error
}

// FanoutReport итог рассылки по одному тикету
type FanoutReport struct {
	DeliveryID string
	TicketID   uint
	Channels   []string
	Tokens     []string
	Deliveries []Delivery
}

// FailedCount количество неуспешных доставок
func (r FanoutReport) FailedCount() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// NotificationFanout рассылает TicketCreated администраторам и пользователям юнита
type NotificationFanout struct {
	broadcast BroadcastSink
	push      PushSink
	db        *gorm.DB
	cfg       config.NotificationsConfig
	baseURL   string
	logger    *zap.Logger
}

// NewNotificationFanout создает рассылку. Любой из синков может быть nil.
func NewNotificationFanout(broadcast BroadcastSink, push PushSink, db *gorm.DB, cfg config.NotificationsConfig, baseURL string, logger *zap.Logger) *NotificationFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationFanout{
		broadcast: broadcast,
		push:      push,
		db:        db,
		cfg:       cfg,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// Channels каналы для тикета: админский плюс персональный канал каждого назначенного пользователя
func (f *NotificationFanout) Channels(users []models.User) []string {
	channels := make([]string, 0, len(users)+1)
	channels = append(channels, f.cfg.AdminChannel)
	seen := make(map[uint]bool, len(users))
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		channels = append(channels, fmt.Sprintf(f.cfg.UserChannel, u.ID))
	}
	return channels
}

// TicketURL ссылка на тикет в веб-интерфейсе
func (f *NotificationFanout) TicketURL(ticketID uint) string {
	return fmt.Sprintf("%s/tickets/%d", f.baseURL, ticketID)
}

// BuildPayload формирует данные события ticket.created
func (f *NotificationFanout) BuildPayload(ticket *models.Ticket) map[string]interface{} {
	unitName, alertType, timestamp := "", "", ""
	if ticket.Alert != nil {
		alertType = ticket.Alert.Type
		timestamp = ticket.Alert.Timestamp.UTC().Format(time.RFC3339)
		if ticket.Alert.Unit != nil {
			unitName = ticket.Alert.Unit.Name
		}
	}

	return map[string]interface{}{
		"ticket": map[string]interface{}{
			"id":         ticket.ID,
			"status":     ticket.GetStatusDisplayName(),
			"unit_name":  unitName,
			"alert_type": alertType,
			"timestamp":  timestamp,
			"url":        f.TicketURL(ticket.ID),
		},
	}
}

// HandleTicketCreated рассылает уведомления. Ошибки синков логируются и попадают в отчет,
// наружу не возвращаются.
func (f *NotificationFanout) HandleTicketCreated(ctx context.Context, event TicketCreated) FanoutReport {
	ticket := event.Ticket
	report := FanoutReport{
		DeliveryID: uuid.New().String(),
		TicketID:   ticket.ID,
	}

	var users []models.User
	var unitName, alertType string
	if ticket.Alert != nil {
		alertType = ticket.Alert.Type
		if ticket.Alert.Unit != nil {
			unitName = ticket.Alert.Unit.Name
			users = ticket.Alert.Unit.Users
		}
	}

	report.Channels = f.Channels(users)
	for _, u := range users {
		if u.TelegramChatID != "" {
			report.Tokens = append(report.Tokens, u.TelegramChatID)
		}
	}

	if f.broadcast != nil {
		results := f.broadcast.Broadcast(ctx, BroadcastMessage{
			Channels: report.Channels,
			Event:    EventTicketCreated,
			Payload:  f.BuildPayload(ticket),
		})
		f.collect(&report, f.broadcast.Name(), results)
	}

	if f.push != nil && len(report.Tokens) > 0 {
		results := f.push.Push(ctx, PushMessage{
			Tokens: report.Tokens,
			Title:  fmt.Sprintf("New alert: %s", unitName),
			Body:   fmt.Sprintf("Alert '%s' registered.", alertType),
			Data: map[string]string{
				"ticket_id":   fmt.Sprint(ticket.ID),
				"ticket_code": ticket.Code(),
				"url":         f.TicketURL(ticket.ID),
			},
		})
		f.collect(&report, f.push.Name(), results)
	}

	f.saveLogs(ctx, report)

	f.logger.Info("ticket notifications sent",
		zap.Uint("ticket_id", ticket.ID),
		zap.String("delivery_id", report.DeliveryID),
		zap.Int("channels", len(report.Channels)),
		zap.Int("tokens", len(report.Tokens)),
		zap.Int("failed", report.FailedCount()),
	)
	return report
}

func (f *NotificationFanout) collect(report *FanoutReport, sink string, results []DeliveryResult) {
	for _, r := range results {
		status := models.NotificationStatusSent
		if r.Err != nil {
			status = models.NotificationStatusFailed
			f.logger.Warn("notification delivery failed",
				zap.String("sink", sink),
				zap.String("target", r.Target),
				zap.Uint("ticket_id", report.TicketID),
				zap.Error(r.Err),
			)
		}
		metrics.NotificationDeliveriesTotal.WithLabelValues(sink, status).Inc()
		report.Deliveries = append(report.Deliveries, Delivery{Sink: sink, Target: r.Target, Err: r.Err})
	}
}

// saveLogs пишет журнал доставок. Ошибка записи только логируется.
func (f *NotificationFanout) saveLogs(ctx context.Context, report FanoutReport) {
	if f.db == nil || len(report.Deliveries) == 0 {
		return
	}

	logs := make([]models.NotificationLog, 0, len(report.Deliveries))
	for _, d := range report.Deliveries {
		entry := models.NotificationLog{
			TicketID:   report.TicketID,
			Sink:       d.Sink,
			Target:     d.Target,
			Event:      EventTicketCreated,
			Status:     models.NotificationStatusSent,
			DeliveryID: report.DeliveryID,
		}
		if d.Err != nil {
			entry.Status = models.NotificationStatusFailed
			entry.ErrorMessage = d.Err.Error()
		}
		logs = append(logs, entry)
	}

	if err := f.db.WithContext(ctx).Create(&logs).Error; err != nil {
		f.logger.Warn("failed to save notification logs", zap.Uint("ticket_id", report.TicketID), zap.Error(err))
	}
}
