package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"boleta/internal/core"
)

func samplePayslip(id string, month int) *core.Payslip {
	return &core.Payslip{
		ID:       id,
		Employee: "Ana Pérez",
		Period:   core.Period{Year: 2025, Month: month},
		Lines:    core.DefaultLines(),
		Rule:     core.ContributionRule{Mode: core.ModeAuto, RatePercent: "9"},
	}
}

func TestMemoryStoreSaveGetVersions(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := samplePayslip("a", 1)
	v, err := s.Save(ctx, p, core.ZeroTotals())
	if err != nil || v != 1 {
		t.Fatalf("unexpected save: v=%d err=%v", v, err)
	}
	v, err = s.Save(ctx, p, core.ZeroTotals())
	if err != nil || v != 2 {
		t.Fatalf("expected version 2, got %d err=%v", v, err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("expected stored version 2, got %d", got.Version)
	}

	// Mutating the copy must not leak into the store.
	got.Lines[0].UnitAmount = "999"
	again, _ := s.Get(ctx, "a")
	if again.Lines[0].UnitAmount != "0.00" {
		t.Fatalf("store shares rows with caller: %q", again.Lines[0].UnitAmount)
	}
}

func TestMemoryStoreMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrPayslipNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, core.ErrPayslipNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	if _, err := s.Save(ctx, &core.Payslip{}, core.ZeroTotals()); err == nil {
		t.Fatalf("expected error saving payslip without id")
	}

	_, _ = s.Save(ctx, samplePayslip("a", 1), core.ZeroTotals())
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, core.ErrPayslipNotFound) {
		t.Fatalf("expected deleted payslip gone")
	}
}

func TestMemoryStoreListOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Save(ctx, samplePayslip("jan", 1), core.ZeroTotals())
	_, _ = s.Save(ctx, samplePayslip("mar", 3), core.FormattedTotals{NetPayable: "10.00"})
	_, _ = s.Save(ctx, samplePayslip("jan-2", 1), core.ZeroTotals())

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"mar", "jan", "jan-2"}
	if len(list) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, list[i].ID)
		}
	}
	if list[0].Totals.NetPayable != "10.00" {
		t.Fatalf("expected totals carried in summary, got %+v", list[0].Totals)
	}
}

func TestNewFromDirSeeds(t *testing.T) {
	dir := t.TempDir()
	if s := NewFromDir(dir, nil); len(mustList(t, s)) != 0 {
		t.Fatalf("expected empty store from empty dir")
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("marzo.yaml", `employee: Ana Pérez
period: 2025-03
contribution:
  mode: auto
  rate: 9
lines:
  - description: Remuneración básica
    category: ingreso
    quantity: 1
    unit_amount: 1000.00
`)
	mustWrite("broken.yaml", "employee: [\n")

	s := NewFromDir(dir, nil)
	list := mustList(t, s)
	if len(list) != 1 || list[0].ID != "marzo" {
		t.Fatalf("unexpected seeded list: %+v", list)
	}
	want := core.FormattedTotals{Income: "1000.00", Deductions: "0.00", EmployerContributions: "0.00", NetPayable: "1000.00"}
	if list[0].Totals != want {
		t.Fatalf("seeded summary totals = %+v, want %+v", list[0].Totals, want)
	}
	p, err := s.Get(context.Background(), "marzo")
	if err != nil {
		t.Fatalf("get seeded: %v", err)
	}
	if p.Lines[0].UnitAmount != "1000.00" || p.Rule.Mode != core.ModeAuto {
		t.Fatalf("unexpected seeded payslip: %+v", p)
	}
}

func TestNewFromDirUsesTotalsFunc(t *testing.T) {
	dir := t.TempDir()
	doc := `employee: Ana Pérez
period: 2025-04
lines:
  - description: Remuneración básica
    quantity: 1
    unit_amount: 1000
  - description: EsSalud
    category: aporte
    quantity: 1
    unit_amount: 0
    contribution_target: true
`
	if err := os.WriteFile(filepath.Join(dir, "abril.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewFromDir(dir, func(p *core.Payslip) core.FormattedTotals {
		p.Lines[1].UnitAmount = "90.00"
		return core.SumLines(p.Lines).Format()
	})
	list := mustList(t, s)
	if len(list) != 1 || list[0].Totals.EmployerContributions != "90.00" {
		t.Fatalf("expected computed totals in summary, got %+v", list)
	}
	p, err := s.Get(context.Background(), "abril")
	if err != nil {
		t.Fatalf("get seeded: %v", err)
	}
	if p.Lines[1].UnitAmount != "0" {
		t.Fatalf("totals func must not change stored rows, got %q", p.Lines[1].UnitAmount)
	}
}

func TestDirExporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	e := DirExporter{Dir: dir}
	p := samplePayslip("a", 2)

	ref, err := e.ExportPayslip(context.Background(), p, core.ZeroTotals())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ref != "file:"+filepath.Join(dir, "a.yaml") {
		t.Fatalf("unexpected ref %q", ref)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.yaml")); err != nil {
		t.Fatalf("expected exported file: %v", err)
	}
	if err := e.DeletePayslip(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.DeletePayslip(context.Background(), "a"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestDirExporterListExported(t *testing.T) {
	dir := t.TempDir()
	e := DirExporter{Dir: dir}

	p := samplePayslip("a", 2)
	p.Version = 3
	if _, err := e.ExportPayslip(context.Background(), p, core.ZeroTotals()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("lines: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := e.ListExported(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" || got[0].Version != 3 {
		t.Fatalf("unexpected exported list %+v", got)
	}
}

func mustList(t *testing.T, s *Store) []core.PayslipSummary {
	t.Helper()
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return list
}
