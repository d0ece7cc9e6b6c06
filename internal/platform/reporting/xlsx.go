package reporting

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Table is one sheet of a workbook or the body of a PDF document.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]any
	// Widths sets column widths in characters; missing entries use 18.
	Widths []float64
}

// WriteXLSX writes tables as sheets of a single workbook.
func WriteXLSX(w io.Writer, tables ...Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("reporting: no tables to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1E3A5F"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("reporting: header style: %w", err)
	}

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return fmt.Errorf("reporting: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("reporting: new sheet %q: %w", t.Name, err)
		}
		if err := writeSheet(f, t, headerStyle); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("reporting: write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, t Table, headerStyle int) error {
	for col, h := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(t.Name, cell, h); err != nil {
			return fmt.Errorf("reporting: header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(t.Name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("reporting: header style %s: %w", cell, err)
		}
		width := 18.0
		if col < len(t.Widths) {
			width = t.Widths[col]
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(t.Name, name, name, width); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(t.Name, cell, v); err != nil {
				return fmt.Errorf("reporting: cell %s: %w", cell, err)
			}
		}
	}
	if len(t.Headers) > 0 {
		if err := f.SetPanes(t.Name, &excelize.Panes{
			Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
		}); err != nil {
			return fmt.Errorf("reporting: freeze header: %w", err)
		}
	}
	return nil
}
