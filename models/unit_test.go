package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveUnitStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	edge := now.Add(-OfflineThreshold)
	stale := now.Add(-OfflineThreshold - time.Second)

	tests := []struct {
		name        string
		speed       int
		lastMessage *time.Time
		want        string
	}{
		{"движется без сообщений", 40, nil, UnitStatusMoving},
		{"движется со старым сообщением", 10, &stale, UnitStatusMoving},
		{"стоит со свежим сообщением", 0, &recent, UnitStatusOnline},
		{"ровно на границе", 0, &edge, UnitStatusOnline},
		{"старое сообщение", 0, &stale, UnitStatusOffline},
		{"нет сообщений", 0, nil, UnitStatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveUnitStatus(tt.speed, tt.lastMessage, now))
		})
	}
}

func TestUnitChangedColumns(t *testing.T) {
	imei := "860000000000001"
	lastMessage := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	base := Unit{
		WialonID:    7,
		Name:        "Самосвал",
		IMEI:        &imei,
		Latitude:    decimal.NewNullDecimal(decimal.RequireFromString("43.2567000")),
		Speed:       0,
		LastMessage: &lastMessage,
	}

	same := base
	sameIMEI := imei
	same.IMEI = &sameIMEI
	same.Latitude = decimal.NewNullDecimal(decimal.RequireFromString("43.2567"))
	sameTime := lastMessage.In(time.FixedZone("UTC+5", 5*3600))
	same.LastMessage = &sameTime
	assert.Empty(t, base.ChangedColumns(&same), "равные значения в другом представлении не считаются изменением")

	changed := base
	changed.Name = "Самосвал 2"
	changed.Speed = 55
	changed.IMEI = nil
	changed.Latitude = decimal.NullDecimal{}
	assert.ElementsMatch(t, []string{"name", "speed", "imei", "latitude"}, base.ChangedColumns(&changed))
}

func TestUnitSyncColumnsCoverChangedColumns(t *testing.T) {
	moved := time.Now()
	a := Unit{}
	b := Unit{
		Name: "x", IMEI: new(string), UnitType: new(string), Plates: new(string), PhoneNumber: new(string),
		Latitude: decimal.NewNullDecimal(decimal.NewFromInt(1)), Longitude: decimal.NewNullDecimal(decimal.NewFromInt(1)),
		Altitude: new(int), Orientation: new(int), Speed: 1, GPSSignal: new(int),
		MainBattery: new(float64), BackupBattery: new(float64), PanicButton: true, GSMQuality: new(int),
		EngineStatus: true, Odometer: new(int64), EngineLockup: true, LastMessage: &moved,
	}

	assert.ElementsMatch(t, SyncColumns, a.ChangedColumns(&b))
}

func TestUnitUsersAssociation(t *testing.T) {
	db := setupTestDB(t)

	user := User{Name: "Оператор", Email: "operator@example.com", Role: UserRoleUser}
	require.NoError(t, db.Create(&user).Error)
	unit := Unit{WialonID: 42, Name: "Фургон", Users: []User{user}}
	require.NoError(t, db.Create(&unit).Error)

	var loaded Unit
	require.NoError(t, db.Preload("Users").First(&loaded, unit.ID).Error)
	require.Len(t, loaded.Users, 1)
	assert.Equal(t, "operator@example.com", loaded.Users[0].Email)
	assert.False(t, loaded.Users[0].IsAdmin())
}

func TestTicketCodeAndStatus(t *testing.T) {
	ticket := Ticket{ID: 7, Status: TicketStatusOpen}
	assert.Equal(t, "TKT-007", ticket.Code())
	assert.Equal(t, "Open", ticket.GetStatusDisplayName())

	ticket.ID = 1234
	ticket.Status = "archived"
	assert.Equal(t, "TKT-1234", ticket.Code())
	assert.Equal(t, "Unknown", ticket.GetStatusDisplayName())
}
