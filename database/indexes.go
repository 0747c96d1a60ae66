package database

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// PerformanceIndexes составные индексы, которые не выражаются тегами gorm
var PerformanceIndexes = []DatabaseIndex{
	// Лента алертов по юниту
	{
		Name:    "idx_alerts_unit_timestamp",
		Table:   "alerts",
		Columns: []string{"unit_id", "timestamp"},
	},
	// Список юнитов и поиск
	{
		Name:    "idx_units_name",
		Table:   "units",
		Columns: []string{"name"},
	},
	{
		Name:    "idx_units_plates",
		Table:   "units",
		Columns: []string{"plates"},
	},
	// Фан-аут выбирает пользователей юнита
	{
		Name:    "idx_unit_user_unit",
		Table:   "unit_user",
		Columns: []string{"unit_id"},
	},
	{
		Name:    "idx_tickets_status_created",
		Table:   "tickets",
		Columns: []string{"status", "created_at"},
	},
}

// CreatePerformanceIndexes создает индексы для оптимизации производительности.
// Ошибка одного индекса не мешает созданию остальных.
func CreatePerformanceIndexes(db *gorm.DB, logger *zap.Logger) int {
	created := 0
	for _, index := range PerformanceIndexes {
		if err := CreateIndex(db, index); err != nil {
			logger.Warn("failed to create index", zap.String("index", index.Name), zap.Error(err))
			continue
		}
		created++
	}

	logger.Info("performance indexes ensured", zap.Int("created", created), zap.Int("total", len(PerformanceIndexes)))
	return created
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	if len(index.Columns) == 0 {
		return fmt.Errorf("индекс %s без колонок", index.Name)
	}

	uniqueStr := ""
	if index.Unique {
		uniqueStr = "UNIQUE "
	}

	sql := fmt.Sprintf(
		"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		uniqueStr, index.Name, index.Table, strings.Join(index.Columns, ", "),
	)
	return db.Exec(sql).Error
}
