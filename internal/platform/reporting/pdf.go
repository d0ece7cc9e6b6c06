package reporting

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

var (
	colorPrimary   = [3]int{30, 58, 95}
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
	colorTableAlt  = [3]int{241, 245, 249}
)

// Field is a labelled value in a document's header block.
type Field struct {
	Label string
	Value string
}

// Document is a single-table PDF: a title band, header fields, the table and
// right-aligned totals.
type Document struct {
	Title    string
	Subtitle string
	Fields   []Field
	Table    Table
	Totals   []Field
	Footer   string
}

// RenderPDF lays out doc on A4 pages.
func RenderPDF(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, _ := pdf.GetPageSize()
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(18)
	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "L", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	for _, f := range doc.Fields {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 6, tr(f.Label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(f.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	writeTable(pdf, doc.Table, tr)

	if len(doc.Totals) > 0 {
		pdf.Ln(4)
		for i, f := range doc.Totals {
			style := ""
			if i == len(doc.Totals)-1 {
				style = "B"
			}
			pdf.SetFont("Arial", style, 10)
			pdf.CellFormat(130, 6, tr(f.Label), "", 0, "R", false, 0, "")
			pdf.CellFormat(0, 6, tr(f.Value), "", 1, "R", false, 0, "")
		}
	}

	if doc.Footer != "" {
		pdf.Ln(10)
		pdf.SetFont("Arial", "I", 9)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.MultiCell(0, 5, tr(doc.Footer), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *fpdf.Fpdf, t Table, tr func(string) string) {
	if len(t.Headers) == 0 {
		return
	}
	left, _, right, _ := pdf.GetMargins()
	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - left - right

	widths := make([]float64, len(t.Headers))
	var sum float64
	for i := range widths {
		w := 18.0
		if i < len(t.Widths) {
			w = t.Widths[i]
		}
		widths[i] = w
		sum += w
	}
	for i := range widths {
		widths[i] = widths[i] / sum * usable
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.SetTextColor(255, 255, 255)
	for i, h := range t.Headers {
		pdf.CellFormat(widths[i], 7, tr(h), "", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
	for r, row := range t.Rows {
		for i := range t.Headers {
			var v string
			if i < len(row) {
				v = fmt.Sprint(row[i])
			}
			align := "L"
			if i > 0 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, tr(v), "", 0, align, r%2 == 1, 0, "")
		}
		pdf.Ln(-1)
	}
}
