package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend_fleetwatch/models"

	"gorm.io/gorm"
)

// Приоритеты тикетов
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// ErrTicketNotFound тикет не найден или недоступен пользователю
var ErrTicketNotFound = errors.New("тикет не найден")

var (
	highPriorityMarkers   = []string{"panic", "pánico", "panico", "sin reportar", "no report"}
	mediumPriorityMarkers = []string{"speed", "velocidad", "geofence", "geocerca"}
)

// TicketView тикет в том виде, в каком его видит оператор
type TicketView struct {
	ID          uint      `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Unit        string    `json:"unit"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"status_label"`
	Description string    `json:"description"`
	AlertAt     time.Time `json:"alert_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// TicketService чтение тикетов для операторов
type TicketService struct {
	db *gorm.DB
}

// NewTicketService создает сервис тикетов
func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{db: db}
}

func (s *TicketService) scoped(ctx context.Context, userID *uint) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Ticket{}).Preload("Alert.Unit")
	if userID != nil {
		query = query.
			Select("tickets.*").
			Joins("JOIN alerts ON alerts.id = tickets.alert_id").
			Joins("JOIN unit_user ON unit_user.unit_id = alerts.unit_id").
			Where("unit_user.user_id = ?", *userID)
	}
	return query
}

// List возвращает тикеты, новые первыми. userID ограничивает выборку юнитами пользователя.
func (s *TicketService) List(ctx context.Context, userID *uint) ([]TicketView, error) {
	var tickets []models.Ticket
	if err := s.scoped(ctx, userID).Order("tickets.created_at DESC, tickets.id DESC").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения тикетов: %w", err)
	}

	views := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		views = append(views, NewTicketView(&tickets[i]))
	}
	return views, nil
}

// Get возвращает тикет по ID
func (s *TicketService) Get(ctx context.Context, id uint, userID *uint) (*TicketView, error) {
	var ticket models.Ticket
	err := s.scoped(ctx, userID).Where("tickets.id = ?", id).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тикета %d: %w", id, err)
	}

	view := NewTicketView(&ticket)
	return &view, nil
}

// NewTicketView строит представление тикета. Alert и Alert.Unit должны быть загружены.
func NewTicketView(ticket *models.Ticket) TicketView {
	view := TicketView{
		ID:          ticket.ID,
		Code:        ticket.Code(),
		Status:      ticket.Status,
		StatusLabel: ticket.GetStatusDisplayName(),
		CreatedAt:   ticket.CreatedAt,
	}
	if ticket.Alert != nil {
		view.Title = ticket.Alert.Type
		view.Priority = TicketPriority(ticket.Alert.Type)
		view.Description = AlertDescription(ticket.Alert)
		view.AlertAt = ticket.Alert.Timestamp
		if ticket.Alert.Unit != nil {
			view.Unit = ticket.Alert.Unit.Name
		}
	}
	return view
}

// TicketPriority приоритет по типу алерта
func TicketPriority(alertType string) string {
	lower := strings.ToLower(alertType)
	for _, m := range highPriorityMarkers {
		if strings.Contains(lower, m) {
			return PriorityHigh
		}
	}
	for _, m := range mediumPriorityMarkers {
		if strings.Contains(lower, m) {
			return PriorityMedium
		}
	}
	return PriorityLow
}

// AlertDescription описание алерта: для превышения скорости с известной скоростью
// формируется отдельный текст, иначе берется поле text
func AlertDescription(alert *models.Alert) string {
	lower := strings.ToLower(alert.Type)
	if strings.Contains(lower, "speed") || strings.Contains(lower, "velocidad") {
		if speed, ok := alert.Payload.String("speed"); ok && speed != "" && speed != "0" {
			return fmt.Sprintf("Unit exceeded the speed limit, reaching %s km/h.", speed)
		}
	}
	return alert.Payload.StringOr("text", "No detailed description.")
}
