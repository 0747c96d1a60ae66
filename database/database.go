package database

import (
	"database/sql"
	"fmt"

	"backend_fleetwatch/config"
	"backend_fleetwatch/models"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// CreateDatabaseIfNotExists создает базу данных, если она не существует.
// Для sqlite ничего не делает.
func CreateDatabaseIfNotExists(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return nil
	}

	// Подключаемся к служебной БД postgres
	db, err := sql.Open("postgres", cfg.GetAdminDSN())
	if err != nil {
		return fmt.Errorf("не удалось подключиться к PostgreSQL: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("не удалось проверить подключение к PostgreSQL: %w", err)
	}

	var exists bool
	query := "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1);"
	if err := db.QueryRow(query, cfg.Database.Name).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка при проверке существования базы данных: %w", err)
	}

	if exists {
		logger.Info("database already exists", zap.String("name", cfg.Database.Name))
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s;", cfg.Database.Name)); err != nil {
		return fmt.Errorf("не удалось создать базу данных '%s': %w", cfg.Database.Name, err)
	}

	logger.Info("database created", zap.String("name", cfg.Database.Name))
	return nil
}

// Connect открывает подключение к БД согласно конфигурации
func Connect(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.App.Debug {
		logLevel = gormlogger.Info
	}
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.GetDatabaseDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("неподдерживаемый драйвер БД: %s", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к базе данных: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить пул соединений: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	logger.Info("database connected", zap.String("driver", cfg.Database.Driver))
	return db, nil
}

// AllModels модели, которыми владеет сервис
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Unit{},
		&models.Alert{},
		&models.Ticket{},
		&models.NotificationLog{},
	}
}

// AutoMigrate выполняет автомиграцию всех моделей
func AutoMigrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("ошибка автомиграции: %w", err)
	}

	logger.Info("auto migration completed")
	return nil
}
