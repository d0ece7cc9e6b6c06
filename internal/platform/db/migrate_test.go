package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"002_clinical.sql": {Data: []byte("CREATE TABLE clinical_record (id UUID);")},
		"001_core.sql":     {Data: []byte("CREATE TABLE tenant (id UUID);")},
		"010_billing.sql":  {Data: []byte("CREATE TABLE patient_invoice (id UUID);")},
		"README.md":        {Data: []byte("docs")},
		"core.sql":         {Data: []byte("-- no version prefix")},
		"abc_bad.sql":      {Data: []byte("-- non-numeric prefix")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].SQL != "CREATE TABLE tenant (id UUID);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}
