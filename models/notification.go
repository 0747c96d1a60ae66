package models

import (
	"time"
)

// Статусы доставки уведомлений
const (
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

// NotificationLog представляет лог отправленных уведомлений
type NotificationLog struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	// Основные поля
	TicketID     uint   `json:"ticket_id" gorm:"not null;index"` // Тикет, по которому шла рассылка
	Sink         string `json:"sink" gorm:"not null"`            // broadcast, push
	Target       string `json:"target" gorm:"not null"`          // Канал или chat id
	Event        string `json:"event"`                           // ticket.created
	Status       string `json:"status" gorm:"not null"`          // sent, failed
	ErrorMessage string `json:"error_message" gorm:"type:text"`  // Сообщение об ошибке

	// ID рассылки, общий для всех записей одного TicketCreated
	DeliveryID string `json:"delivery_id" gorm:"index"`
}

// TableName задает имя таблицы для модели NotificationLog
func (NotificationLog) TableName() string {
	return "notification_logs"
}
