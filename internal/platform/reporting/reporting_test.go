package reporting

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

func TestPredefinedMeasures_AreTenantScoped(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range PredefinedMeasures {
		if m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is missing a name or description", m.ID)
		}
		if !strings.Contains(m.SQL, "tenant_id = $1") {
			t.Errorf("measure %s does not filter by tenant", m.ID)
		}
		if !strings.Contains(m.SQL, "$2") {
			t.Errorf("measure %s does not bind the window start", m.ID)
		}
		if seen[m.ID] {
			t.Errorf("duplicate measure id %s", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestFindMeasure(t *testing.T) {
	m := FindMeasure("patients-total")
	if m == nil {
		t.Fatal("expected to find patients-total")
	}
	if m.Name != "Patients" {
		t.Errorf("expected 'Patients', got %s", m.Name)
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestEvaluate_RequiresTenant(t *testing.T) {
	_, err := Evaluate(context.Background(), nil, uuid.Nil, time.Now(), PredefinedMeasures)
	if err == nil {
		t.Fatal("expected error without a tenant")
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf,
		Table{Name: "Summary", Headers: []string{"Measure", "Value"}, Rows: [][]any{{"Patients", 12}}},
		Table{Name: "Events", Headers: []string{"Time", "Type"}, Rows: [][]any{{"2026-04-14", "login"}, {"2026-04-15", "patient_create"}}},
	)
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Summary" || sheets[1] != "Events" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	v, err := f.GetCellValue("Summary", "B2")
	if err != nil || v != "12" {
		t.Errorf("Summary!B2 = %q, %v", v, err)
	}
	rows, err := f.GetRows("Events")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 || rows[2][1] != "patient_create" {
		t.Errorf("unexpected Events rows %v", rows)
	}
}

func TestWriteXLSX_NoTables(t *testing.T) {
	if err := WriteXLSX(&bytes.Buffer{}); err == nil {
		t.Fatal("expected error for an empty workbook")
	}
}

func TestRenderPDF(t *testing.T) {
	out, err := RenderPDF(Document{
		Title:    "Invoice INV-1",
		Subtitle: "Acme Clinic",
		Fields:   []Field{{Label: "Patient", Value: "Zoë Ient"}},
		Table: Table{
			Headers: []string{"Description", "Qty", "Total"},
			Rows:    [][]any{{"Consultation", 1, "80.00"}, {"Blood test", 2, "30.00"}},
			Widths:  []float64{60, 10, 20},
		},
		Totals: []Field{{Label: "Subtotal", Value: "110.00"}, {Label: "Total", Value: "GBP 110.00"}},
		Footer: "Payment due within 30 days.",
	})
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", out[:8])
	}
}
