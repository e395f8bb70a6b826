package google

import (
	"testing"

	"boleta/internal/core"
)

func TestParseSummaries(t *testing.T) {
	values := [][]any{
		header,
		{"abc", "Ana Pérez", "2025-03", "4", "auto", "1000.00", "50.00", "90.00", "950.00", "2025-03-31T10:00:00Z"},
		{},
		{"", "", "", "", "", "", "", "", "", ""},
		{"def", "Luis", "bad", "x", "manual", "0.00"},
	}
	got, err := parseSummaries(values)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d: %+v", len(got), got)
	}
	a := got[0]
	if a.ID != "abc" || a.Version != 4 || a.Period != (core.Period{Year: 2025, Month: 3}) || a.Totals.NetPayable != "950.00" {
		t.Fatalf("unexpected first summary %+v", a)
	}
	b := got[1]
	if b.Version != 0 || b.Period != (core.Period{}) || b.Totals.Income != "0.00" || b.Totals.NetPayable != "" {
		t.Fatalf("short row should parse leniently, got %+v", b)
	}
}

func TestParseSummaries_ReorderedColumns(t *testing.T) {
	values := [][]any{
		{"Neto a pagar", "id", "Empleado", "Periodo", "Versión", "Ingresos", "Deducciones", "Aportes"},
		{"950.00", "abc", "Ana", "2025-03", 2, "1000.00", "50.00", "90.00"},
	}
	got, err := parseSummaries(values)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || got[0].ID != "abc" || got[0].Version != 2 || got[0].Totals.NetPayable != "950.00" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestParseSummaries_MissingHeader(t *testing.T) {
	_, err := parseSummaries([][]any{{"ID", "Empleado"}})
	if err == nil {
		t.Fatal("expected header error")
	}
}

func TestParseSummaries_Empty(t *testing.T) {
	got, err := parseSummaries(nil)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}
