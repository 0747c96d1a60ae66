package services

import (
	"bytes"
	"fmt"
	"time"

	"backend_fleetwatch/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var unitExportHeaders = []string{
	"Wialon ID", "Name", "Plates", "IMEI", "Unit type", "Phone",
	"Status", "Speed", "Latitude", "Longitude", "Odometer", "Ignition", "Last message",
}

// ExportService выгрузки для операторов
type ExportService struct {
	now func() time.Time
}

// NewExportService создает сервис выгрузок
func NewExportService() *ExportService {
	return &ExportService{now: time.Now}
}

// UnitsXLSX формирует xlsx со списком юнитов и их вычисленным статусом
func (es *ExportService) UnitsXLSX(units []models.Unit) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Units"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("ошибка создания листа: %w", err)
	}

	for i, header := range unitExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	now := es.now()
	for rowIdx, u := range units {
		row := []interface{}{
			u.WialonID,
			u.Name,
			derefString(u.Plates),
			derefString(u.IMEI),
			derefString(u.UnitType),
			derefString(u.PhoneNumber),
			u.Status(now),
			u.Speed,
			decimalString(u.Latitude),
			decimalString(u.Longitude),
			derefInt64(u.Odometer),
			u.EngineStatus,
			formatTimePtr(u.LastMessage),
		}
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	endCell, _ := excelize.CoordinatesToCellName(len(unitExportHeaders), len(units)+1)
	if err := f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{}); err != nil {
		return nil, fmt.Errorf("ошибка добавления автофильтра: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("ошибка записи xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// TicketPDF формирует одностраничную карточку тикета
func (es *ExportService) TicketPDF(view TicketView) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Ticket %s", view.Code)))
	pdf.Ln(14)

	rows := [][2]string{
		{"Alert", view.Title},
		{"Unit", view.Unit},
		{"Priority", view.Priority},
		{"Status", view.StatusLabel},
		{"Alert time", view.AlertAt.UTC().Format("2006-01-02 15:04:05 UTC")},
		{"Created", view.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(40, 8, tr(row[0]))
		pdf.SetFont("Arial", "", 11)
		pdf.Cell(0, 8, tr(row[1]))
		pdf.Ln(8)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "Description")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 6, tr(view.Description), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("ошибка формирования pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt64(i *int64) interface{} {
	if i == nil {
		return ""
	}
	return *i
}

func decimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
