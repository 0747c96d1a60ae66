package testutils

import (
	"fmt"
	"time"

	"backend_fleetwatch/database"
	"backend_fleetwatch/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB создает тестовую базу данных SQLite в памяти.
// Одно соединение: каждое новое соединение к :memory: получает пустую базу.
func SetupTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		return nil, err
	}
	return db, nil
}

// CleanupTestDB закрывает тестовую базу данных
func CleanupTestDB(db *gorm.DB) {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
}

// CreateTestUser создает пользователя с ролью role
func CreateTestUser(db *gorm.DB, name, role string) (*models.User, error) {
	user := &models.User{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "hashed_password",
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateTestUnit создает юнит с идентификатором Wialon wialonID
func CreateTestUnit(db *gorm.DB, wialonID int64, name string, users ...*models.User) (*models.Unit, error) {
	lastMessage := time.Now().UTC().Add(-time.Minute)
	unit := &models.Unit{
		WialonID:    wialonID,
		Name:        name,
		LastMessage: &lastMessage,
	}
	if err := db.Create(unit).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		if err := db.Model(unit).Association("Users").Append(u); err != nil {
			return nil, err
		}
	}
	return unit, nil
}

// CreateTestAlert создает алерт по юниту
func CreateTestAlert(db *gorm.DB, unit *models.Unit, alertType string, payload models.Payload) (*models.Alert, error) {
	alert := &models.Alert{
		UnitID:    unit.ID,
		Type:      alertType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if err := db.Create(alert).Error; err != nil {
		return nil, err
	}
	return alert, nil
}
