package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Landscape A4 printable width with 10mm margins.
const pdfPageWidth = 277.0

// PDFExporter renders datasets into a landscape tabular PDF, one timetable
// grid per page.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document for the dataset. The dataset title becomes
// the page heading.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	// The first column carries the period label and stays narrow so day
	// columns get the remaining width.
	labelWidth := pdfPageWidth / float64(len(data.Headers)+2)
	colWidth := labelWidth
	if len(data.Headers) > 1 {
		colWidth = (pdfPageWidth - labelWidth) / float64(len(data.Headers)-1)
	}

	widthAt := func(i int) float64 {
		if i == 0 {
			return labelWidth
		}
		return colWidth
	}

	pdf.SetFont("Arial", "B", 9)
	for i, header := range data.Headers {
		pdf.CellFormat(widthAt(i), 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for i := range data.Headers {
			var value string
			if i < len(row) {
				value = row[i]
			}
			align := ""
			if i == 0 {
				align = "C"
			}
			pdf.CellFormat(widthAt(i), 7, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
