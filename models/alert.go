package models

import (
	"time"
)

// Alert событие, пришедшее от Wialon по юниту (паника, превышение скорости и т.д.)
// После создания не изменяется.
type Alert struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UnitID uint  `json:"unit_id" gorm:"not null;index"`
	Unit   *Unit `json:"unit,omitempty" gorm:"foreignKey:UnitID;constraint:OnDelete:CASCADE"`

	Type      string    `json:"type" gorm:"not null"`
	Payload   Payload   `json:"payload" gorm:"not null"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

// TableName задает имя таблицы для модели Alert
func (Alert) TableName() string {
	return "alerts"
}
