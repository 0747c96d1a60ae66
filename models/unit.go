package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы юнита. Статус вычисляется при чтении и в БД не хранится.
const (
	UnitStatusMoving  = "moving"
	UnitStatusOnline  = "online"
	UnitStatusOffline = "offline"
)

// OfflineThreshold время без сообщений, после которого юнит считается offline
const OfflineThreshold = 15 * time.Minute

// Unit представляет транспортное средство, отслеживаемое через Wialon
type Unit struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Идентификатор юнита в Wialon - единственный ключ сверки
	WialonID int64 `json:"wialon_id" gorm:"not null;uniqueIndex"`

	// Основные данные
	Name        string  `json:"name" gorm:"not null"`
	IMEI        *string `json:"imei"`
	UnitType    *string `json:"unit_type" gorm:"column:unit"` // тип оборудования (hw)
	Plates      *string `json:"plates"`
	PhoneNumber *string `json:"phone_number"`

	// Позиция
	Latitude    decimal.NullDecimal `json:"latitude" gorm:"type:decimal(10,7)"`
	Longitude   decimal.NullDecimal `json:"longitude" gorm:"type:decimal(11,7)"`
	Altitude    *int                `json:"altitude"`
	Orientation *int                `json:"orientation"`
	Speed       int                 `json:"speed" gorm:"default:0"`
	GPSSignal   *int                `json:"gps_signal"`

	// Датчики и параметры
	MainBattery   *float64 `json:"main_battery"`
	BackupBattery *float64 `json:"backup_battery"`
	PanicButton   bool     `json:"panic_button" gorm:"default:false"`
	GSMQuality    *int     `json:"gsm_quality"`
	EngineStatus  bool     `json:"engine_status" gorm:"default:false"`
	Odometer      *int64   `json:"odometer"`
	EngineLockup  bool     `json:"engine_lockup" gorm:"default:false"`

	LastMessage *time.Time `json:"last_message" gorm:"index"`

	// Связи
	Users  []User  `json:"users,omitempty" gorm:"many2many:unit_user;"`
	Alerts []Alert `json:"alerts,omitempty" gorm:"foreignKey:UnitID"`
}

// TableName задает имя таблицы для модели Unit
func (Unit) TableName() string {
	return "units"
}

// SyncColumns колонки, которые синхронизация перезаписывает целиком
var SyncColumns = []string{
	"name", "imei", "unit", "plates", "phone_number",
	"latitude", "longitude", "altitude", "orientation", "speed", "gps_signal",
	"main_battery", "backup_battery", "panic_button", "gsm_quality",
	"engine_status", "odometer", "engine_lockup", "last_message",
}

// DeriveUnitStatus вычисляет статус по скорости и времени последнего сообщения
func DeriveUnitStatus(speed int, lastMessage *time.Time, now time.Time) string {
	if speed > 0 {
		return UnitStatusMoving
	}
	if lastMessage != nil && now.Sub(*lastMessage) <= OfflineThreshold {
		return UnitStatusOnline
	}
	return UnitStatusOffline
}

// Status возвращает вычисленный статус юнита на момент now
func (u *Unit) Status(now time.Time) string {
	return DeriveUnitStatus(u.Speed, u.LastMessage, now)
}

// ChangedColumns возвращает синхронизируемые колонки, значения которых отличаются от other
func (u *Unit) ChangedColumns(other *Unit) []string {
	var changed []string
	add := func(column string, equal bool) {
		if !equal {
			changed = append(changed, column)
		}
	}

	add("name", u.Name == other.Name)
	add("imei", equalStringPtr(u.IMEI, other.IMEI))
	add("unit", equalStringPtr(u.UnitType, other.UnitType))
	add("plates", equalStringPtr(u.Plates, other.Plates))
	add("phone_number", equalStringPtr(u.PhoneNumber, other.PhoneNumber))
	add("latitude", equalNullDecimal(u.Latitude, other.Latitude))
	add("longitude", equalNullDecimal(u.Longitude, other.Longitude))
	add("altitude", equalIntPtr(u.Altitude, other.Altitude))
	add("orientation", equalIntPtr(u.Orientation, other.Orientation))
	add("speed", u.Speed == other.Speed)
	add("gps_signal", equalIntPtr(u.GPSSignal, other.GPSSignal))
	add("main_battery", equalFloatPtr(u.MainBattery, other.MainBattery))
	add("backup_battery", equalFloatPtr(u.BackupBattery, other.BackupBattery))
	add("panic_button", u.PanicButton == other.PanicButton)
	add("gsm_quality", equalIntPtr(u.GSMQuality, other.GSMQuality))
	add("engine_status", u.EngineStatus == other.EngineStatus)
	add("odometer", equalInt64Ptr(u.Odometer, other.Odometer))
	add("engine_lockup", u.EngineLockup == other.EngineLockup)
	add("last_message", equalTimePtr(u.LastMessage, other.LastMessage))

	return changed
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// equalNullDecimal сравнивает координаты с точностью колонки (7 знаков)
func equalNullDecimal(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Round(7).Equal(b.Decimal.Round(7))
}

// equalTimePtr сравнивает с точностью до секунды: Wialon отдаёт unix-время
func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Unix() == b.Unix()
}
