package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Houeta/callrelay-bot/internal/models"
	"github.com/xuri/excelize/v2"
)

var ErrNoRows = errors.New("failed to generate export, 0 rows were provided")

const sheetName = "Bindings"

// Generator holds the state for the Excel workbook generation process.
type Generator struct {
	file *excelize.File
}

// NewGenerator creates a new workbook generator.
func NewGenerator() *Generator {
	return &Generator{
		file: excelize.NewFile(),
	}
}

// GenerateBindingsWorkbook builds an Excel workbook listing every user with
// their assigned binding credentials. Phone numbers are masked so the export
// can be shared without exposing the full numbers. The workbook is returned
// as an in-memory buffer ready to be sent as a document.
func GenerateBindingsWorkbook(rows []models.BindingRow) (*bytes.Buffer, error) {
	var err error

	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	gen := NewGenerator()
	defer gen.file.Close()

	if err = gen.setupSheet(len(rows)); err != nil {
		return nil, fmt.Errorf("failed to setup sheet: %w", err)
	}

	headerIndex := 2
	for i, row := range rows {
		if err = gen.addRow(i+headerIndex, row); err != nil { // i+2, because the first row - header
			return nil, fmt.Errorf("failed to add row '%d': %w", i+headerIndex, err)
		}
	}

	gen.file.SetActiveSheet(0)

	// delete default sheet
	if sheetIndex, _ := gen.file.GetSheetIndex("Sheet1"); sheetIndex != -1 {
		if err = gen.file.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to delete default sheet 'Sheet1': %w", err)
		}
	}

	buffer, err := gen.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write data from saved file: %w", err)
	}

	return buffer, nil
}

// setupSheet creates the bindings sheet with headers, styles and column
// widths, and wraps the data range into a table.
func (g *Generator) setupSheet(rowCount int) error {
	var err error

	if _, err = g.file.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to generate new sheet '%s': %w", sheetName, err)
	}

	headerStyle, err := g.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center", Horizontal: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create new style: %w", err)
	}

	rowHeight := 20
	headers := []string{"Telegram ID", "Phone number", "Bot ID", "Trunk ID", "API key"}
	if err = g.file.SetRowHeight(sheetName, 1, float64(rowHeight)); err != nil {
		return fmt.Errorf("failed to set row height for headers: %w", err)
	}
	if err = g.file.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to set sheet row for headers: %w", err)
	}
	if err = g.file.SetCellStyle(sheetName, "A1", "E1", headerStyle); err != nil {
		return fmt.Errorf("failed to set cell style for headers: %w", err)
	}

	widths := map[string]float64{
		"A": 15, "B": 20, "C": 25, "D": 25, "E": 40, //nolint:mnd // const values for row width
	}
	for col, width := range widths {
		if err = g.file.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err = g.file.AddTable(sheetName, &excelize.Table{
		Range:     fmt.Sprintf("A1:E%d", rowCount+1),
		Name:      "table_" + sheetName,
		StyleName: "TableStyleMedium9",
	}); err != nil {
		return fmt.Errorf("failed to add table: %w", err)
	}

	return nil
}

// addRow adds one user+binding row to the bindings sheet.
func (g *Generator) addRow(rowNum int, row models.BindingRow) error {
	rowData := []interface{}{
		row.TelegramID,
		MaskPhone(row.Phone),
		row.BotID,
		row.TrunkID,
		row.APIKey,
	}
	cell, _ := excelize.CoordinatesToCellName(1, rowNum)

	if err := g.file.SetSheetRow(sheetName, cell, &rowData); err != nil {
		return fmt.Errorf("failed to set sheet row: %w", err)
	}

	return nil
}

// MaskPhone hides the middle three digits of a standard +7 number:
// +79123456789 -> +7912***6789. Numbers in any other format are returned
// unchanged.
func MaskPhone(phone string) string {
	const standardLen = 12
	if len(phone) == standardLen && phone[:2] == "+7" {
		return phone[:5] + "***" + phone[8:]
	}
	return phone
}
