package models

import (
	"fmt"
	"time"
)

// Статусы тикета. Ядро создаёт тикеты только в статусе open,
// переходы выполняют операторы вне пайплайна.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusClosed     = "closed"
)

// Ticket рабочая задача для реагирования на алерт
type Ticket struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AlertID uint   `json:"alert_id" gorm:"not null;uniqueIndex"`
	Alert   *Alert `json:"alert,omitempty" gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE"`

	Status string `json:"status" gorm:"type:varchar(20);not null;default:'open';index"`

	ClosedByUserID *uint `json:"closed_by_user_id"`
	ClosedBy       *User `json:"closed_by,omitempty" gorm:"foreignKey:ClosedByUserID;constraint:OnDelete:SET NULL"`
}

// TableName задает имя таблицы для модели Ticket
func (Ticket) TableName() string {
	return "tickets"
}

// GetStatusDisplayName возвращает читаемое название статуса
func (t *Ticket) GetStatusDisplayName() string {
	switch t.Status {
	case TicketStatusOpen:
		return "Open"
	case TicketStatusInProgress:
		return "In progress"
	case TicketStatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Code возвращает короткий код тикета вида TKT-007
func (t *Ticket) Code() string {
	return fmt.Sprintf("TKT-%03d", t.ID)
}
