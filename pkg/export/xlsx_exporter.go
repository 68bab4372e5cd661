package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	gridSheet    = "Timetable"
	entriesSheet = "Entries"
)

// XLSXExporter renders a workbook with a weekly grid sheet and an entry list sheet.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render builds the workbook.
func (e *XLSXExporter) Render(title string, week WeekGrid, entries Dataset) ([]byte, error) {
	if err := entries.validate("xlsx"); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(gridSheet)
	if err != nil {
		return nil, fmt.Errorf("create grid sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("cell style: %w", err)
	}

	lastCol := colName(len(week.Days))
	_ = f.SetCellValue(gridSheet, "A1", title)
	if len(week.Days) > 0 {
		_ = f.MergeCell(gridSheet, "A1", lastCol+"1")
	}
	_ = f.SetCellStyle(gridSheet, "A1", "A1", headerStyle)

	_ = f.SetColWidth(gridSheet, "A", "A", 14)
	if len(week.Days) > 0 {
		_ = f.SetColWidth(gridSheet, "B", lastCol, 28)
	}
	_ = f.SetCellValue(gridSheet, cell("A", 2), "Time")
	for d, day := range week.Days {
		_ = f.SetCellValue(gridSheet, cell(colName(d+1), 2), day)
	}
	_ = f.SetCellStyle(gridSheet, "A2", cell(lastCol, 2), headerStyle)

	for s, slot := range week.Slots {
		row := s + 3
		_ = f.SetCellValue(gridSheet, cell("A", row), slot)
		for d := range week.Days {
			if lines := week.Cell(d, s); len(lines) > 0 {
				_ = f.SetCellValue(gridSheet, cell(colName(d+1), row), strings.Join(lines, "\n"))
			}
		}
		_ = f.SetCellStyle(gridSheet, cell("A", row), cell(lastCol, row), cellStyle)
	}

	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, fmt.Errorf("create entries sheet: %w", err)
	}
	for i, header := range entries.Headers {
		_ = f.SetCellValue(entriesSheet, cell(colName(i), 1), header)
	}
	_ = f.SetCellStyle(entriesSheet, "A1", cell(colName(len(entries.Headers)-1), 1), headerStyle)
	for r, values := range entries.Rows {
		for i, value := range values {
			_ = f.SetCellValue(entriesSheet, cell(colName(i), r+2), value)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
