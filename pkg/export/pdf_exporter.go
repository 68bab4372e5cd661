package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a weekly grid followed by the entry list on landscape A4.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the document. The grid page is skipped when week has no days.
func (e *PDFExporter) Render(title string, week WeekGrid, entries Dataset) ([]byte, error) {
	if err := entries.validate("pdf"); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	const pageWidth = 277.0

	if len(week.Days) > 0 && len(week.Slots) > 0 {
		pdf.AddPage()
		writeTitle(pdf, tr(title))

		slotWidth := 28.0
		dayWidth := (pageWidth - slotWidth) / float64(len(week.Days))
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(slotWidth, 8, "Time", "1", 0, "C", false, 0, "")
		for _, day := range week.Days {
			pdf.CellFormat(dayWidth, 8, tr(day), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 7)
		for s, slot := range week.Slots {
			lines := 1
			for d := range week.Days {
				if n := len(week.Cell(d, s)); n > lines {
					lines = n
				}
			}
			height := 4.0*float64(lines) + 2
			x, y := pdf.GetX(), pdf.GetY()
			pdf.Rect(x, y, slotWidth, height, "D")
			pdf.SetXY(x, y+1)
			pdf.CellFormat(slotWidth, 4, slot, "", 0, "C", false, 0, "")
			for d := range week.Days {
				cx := x + slotWidth + float64(d)*dayWidth
				pdf.Rect(cx, y, dayWidth, height, "D")
				for i, line := range week.Cell(d, s) {
					pdf.SetXY(cx+1, y+1+4*float64(i))
					pdf.CellFormat(dayWidth-2, 4, tr(line), "", 0, "L", false, 0, "")
				}
			}
			pdf.SetXY(x, y+height)
		}
	}

	pdf.AddPage()
	writeTitle(pdf, tr(title+" - entries"))
	colWidth := pageWidth / float64(len(entries.Headers))
	pdf.SetFont("Arial", "B", 9)
	for _, header := range entries.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, row := range entries.Rows {
		for _, value := range row {
			pdf.CellFormat(colWidth, 7, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTitle(pdf *gofpdf.Fpdf, title string) {
	if title == "" {
		return
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.Ln(3)
}
