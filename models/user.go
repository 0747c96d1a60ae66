package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	UserRoleAdmin = "admin"
	UserRoleUser  = "user"
)

// User представляет модель пользователя в системе.
// Учётные записи ведёт внешний слой администрирования, здесь они только читаются.
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля
	Name     string `json:"name" gorm:"not null"`
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Password string `json:"-"` // Пароль не возвращается в JSON

	Role     string `json:"role" gorm:"default:'user'"`
	IsActive bool   `json:"is_active" gorm:"default:true"`

	// Chat ID в Telegram, используется как токен push-уведомлений
	TelegramChatID string `json:"telegram_chat_id"`

	// Юниты, назначенные пользователю
	Units []Unit `json:"units,omitempty" gorm:"many2many:unit_user;"`
}

// TableName задает имя таблицы для модели User
func (User) TableName() string {
	return "users"
}

// IsAdmin проверяет роль администратора
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
