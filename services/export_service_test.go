package services

import (
	"bytes"
	"testing"
	"time"

	"backend_fleetwatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestUnitsXLSX(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	plates := "ABC-123"

	es := NewExportService()
	es.now = func() time.Time { return now }

	data, err := es.UnitsXLSX([]models.Unit{
		{WialonID: 1, Name: "Truck 1", Plates: &plates, Speed: 55, LastMessage: &recent},
		{WialonID: 2, Name: "Truck 2", LastMessage: &recent},
		{WialonID: 3, Name: "Truck 3"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Units")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, unitExportHeaders, rows[0])
	assert.Equal(t, "Truck 1", rows[1][1])
	assert.Equal(t, "ABC-123", rows[1][2])
	assert.Equal(t, models.UnitStatusMoving, rows[1][6])
	assert.Equal(t, models.UnitStatusOnline, rows[2][6])
	assert.Equal(t, models.UnitStatusOffline, rows[3][6])
}

func TestTicketPDF(t *testing.T) {
	data, err := NewExportService().TicketPDF(TicketView{
		ID:          7,
		Code:        "TKT-007",
		Title:       "Botón de pánico",
		Unit:        "Truck 1",
		Priority:    PriorityHigh,
		StatusLabel: "Open",
		Description: "Driver pressed panic",
		AlertAt:     time.Now(),
		CreatedAt:   time.Now(),
	})

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}
