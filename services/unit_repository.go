package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend_fleetwatch/models"

	"gorm.io/gorm"
)

// UpsertOutcome результат upsert юнита
type UpsertOutcome string

const (
	UpsertCreated   UpsertOutcome = "created"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// UnitFilter фильтр списка юнитов
type UnitFilter struct {
	Search string
	// Для роли user показываются только назначенные юниты
	UserID *uint
	Page   int
	Limit  int
}

// UnitStats сводка по статусам юнитов
type UnitStats struct {
	Total   int64 `json:"total"`
	Moving  int64 `json:"moving"`
	Online  int64 `json:"online"`
	Offline int64 `json:"offline"`
}

// UnitRepository доступ к юнитам в БД
type UnitRepository struct {
	db *gorm.DB
}

// NewUnitRepository создает репозиторий юнитов
func NewUnitRepository(db *gorm.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// WithTx возвращает репозиторий, работающий в транзакции tx
func (r *UnitRepository) WithTx(tx *gorm.DB) *UnitRepository {
	return &UnitRepository{db: tx}
}

// FindByWialonID ищет юнит по идентификатору Wialon. Если юнит не найден, возвращает nil без ошибки.
func (r *UnitRepository) FindByWialonID(ctx context.Context, wialonID int64) (*models.Unit, error) {
	var unit models.Unit
	err := r.db.WithContext(ctx).Where("wialon_id = ?", wialonID).First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска юнита %d: %w", wialonID, err)
	}
	return &unit, nil
}

// Upsert создает или обновляет юнит по WialonID.
// Выполняется в отдельной вложенной транзакции (savepoint), чтобы ошибка одной записи не ломала пакет.
func (r *UnitRepository) Upsert(ctx context.Context, incoming *models.Unit) (UpsertOutcome, error) {
	var outcome UpsertOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Unit
		err := tx.Where("wialon_id = ?", incoming.WialonID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(incoming).Error; err != nil {
				return fmt.Errorf("ошибка создания юнита: %w", err)
			}
			outcome = UpsertCreated
			return nil
		}
		if err != nil {
			return fmt.Errorf("ошибка поиска юнита: %w", err)
		}

		changed := existing.ChangedColumns(incoming)
		if len(changed) == 0 {
			incoming.ID = existing.ID
			outcome = UpsertUnchanged
			return nil
		}

		if err := tx.Model(&existing).Select(changed).Updates(incoming).Error; err != nil {
			return fmt.Errorf("ошибка обновления юнита: %w", err)
		}
		incoming.ID = existing.ID
		outcome = UpsertUpdated
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upsert юнита %d: %w", incoming.WialonID, err)
	}
	return outcome, nil
}

func (r *UnitRepository) scoped(ctx context.Context, filter UnitFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Unit{})
	if filter.UserID != nil {
		query = query.Where("units.id IN (?)",
			r.db.Table("unit_user").Select("unit_id").Where("user_id = ?", *filter.UserID))
	}
	return query
}

// List возвращает юниты по фильтру, отсортированные по имени, и общее число найденных
func (r *UnitRepository) List(ctx context.Context, filter UnitFilter) ([]models.Unit, int64, error) {
	query := r.scoped(ctx, filter)
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where(searchCondition(r.db.Dialector.Name()), like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета юнитов: %w", err)
	}

	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.Limit).Limit(filter.Limit)
	}

	var units []models.Unit
	if err := query.Order("units.name ASC").Find(&units).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка получения юнитов: %w", err)
	}
	return units, total, nil
}

// searchCondition поиск по имени и номеру без учета регистра.
// В postgres LIKE чувствителен к регистру, в sqlite нет.
func searchCondition(dialect string) string {
	op := "LIKE"
	if dialect == "postgres" {
		op = "ILIKE"
	}
	return fmt.Sprintf("units.name %[1]s ? OR units.plates %[1]s ?", op)
}

// Stats считает юниты по вычисляемому статусу на момент now (без учета поиска)
func (r *UnitRepository) Stats(ctx context.Context, filter UnitFilter, now time.Time) (UnitStats, error) {
	var stats UnitStats
	threshold := now.Add(-models.OfflineThreshold)

	if err := r.scoped(ctx, filter).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("ошибка подсчета юнитов: %w", err)
	}
	if err := r.scoped(ctx, filter).Where("speed > 0").Count(&stats.Moving).Error; err != nil {
		return stats, fmt.Errorf("ошибка подсчета юнитов в движении: %w", err)
	}
	if err := r.scoped(ctx, filter).
		Where("speed <= 0 AND last_message IS NOT NULL AND last_message >= ?", threshold).
		Count(&stats.Online).Error; err != nil {
		return stats, fmt.Errorf("ошибка подсчета юнитов на связи: %w", err)
	}
	stats.Offline = stats.Total - stats.Moving - stats.Online
	return stats, nil
}

// AssignedUsers возвращает пользователей, назначенных юниту
func (r *UnitRepository) AssignedUsers(ctx context.Context, unitID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Select("users.*").
		Joins("JOIN unit_user ON unit_user.user_id = users.id").
		Where("unit_user.unit_id = ?", unitID).
		Order("users.id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей юнита %d: %w", unitID, err)
	}
	return users, nil
}

// AssignUser назначает пользователя юниту
func (r *UnitRepository) AssignUser(ctx context.Context, unit *models.Unit, user *models.User) error {
	if err := r.db.WithContext(ctx).Model(unit).Association("Users").Append(user); err != nil {
		return fmt.Errorf("ошибка назначения пользователя %d юниту %d: %w", user.ID, unit.ID, err)
	}
	return nil
}
