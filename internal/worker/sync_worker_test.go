package worker

import (
	"context"
	"errors"
	"testing"

	"boleta/internal/amqp"
	"boleta/internal/core"
	"boleta/internal/services"
	"boleta/internal/sheets/memory"
)

type recordingExporter struct {
	exported []core.FormattedTotals
	removed  []string
	err      error
}

func (e *recordingExporter) ExportPayslip(_ context.Context, _ *core.Payslip, t core.FormattedTotals) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.exported = append(e.exported, t)
	return "ref", nil
}

func (e *recordingExporter) DeletePayslip(_ context.Context, id string) error {
	e.removed = append(e.removed, id)
	return nil
}

type recordingMarker struct {
	versions []int64
}

func (m *recordingMarker) MarkSynced(_ context.Context, _ string, version int64) error {
	m.versions = append(m.versions, version)
	return nil
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	p := &core.Payslip{
		ID:       "a",
		Employee: "Ana",
		Period:   core.Period{Year: 2025, Month: 3},
		Lines: []core.LineItem{
			{Description: "Remuneración básica", Category: core.CategoryIncome, Quantity: "1", UnitAmount: "1000"},
			{Description: "EsSalud", Category: core.CategoryEmployerContribution, Quantity: "1", UnitAmount: "90.00", ContributionTarget: true},
		},
		Rule: core.ContributionRule{Mode: core.ModeAuto, RatePercent: "9"},
	}
	for i := 0; i < 2; i++ {
		if _, err := store.Save(context.Background(), p, core.ZeroTotals()); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func TestSyncWorker_HandleRecalculated(t *testing.T) {
	exp := &recordingExporter{}
	marker := &recordingMarker{}
	w := NewSyncWorker(seededStore(t), exp, exp, services.NewEngine(services.DefaultRuleConfig()), marker)

	msg := amqp.NewPayslipRecalculatedMessage("a", 2, core.ZeroTotals())
	if err := w.HandleRecalculated(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(exp.exported) != 1 {
		t.Fatalf("expected one export, got %d", len(exp.exported))
	}
	if got := exp.exported[0]; got.Income != "1000.00" || got.EmployerContributions != "90.00" || got.NetPayable != "1000.00" {
		t.Fatalf("unexpected totals %+v", got)
	}
	if len(marker.versions) != 1 || marker.versions[0] != 2 {
		t.Fatalf("expected version 2 marked, got %v", marker.versions)
	}
}

func TestSyncWorker_SkipsStaleAndDeleted(t *testing.T) {
	exp := &recordingExporter{}
	w := NewSyncWorker(seededStore(t), exp, nil, services.NewEngine(services.DefaultRuleConfig()), nil)

	if err := w.SyncPayslip(context.Background(), "a", 1); err != nil {
		t.Fatalf("stale: %v", err)
	}
	if err := w.SyncPayslip(context.Background(), "gone", 1); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if len(exp.exported) != 0 {
		t.Fatalf("expected no exports, got %d", len(exp.exported))
	}
	if err := w.RemovePayslip(context.Background(), "a"); err != nil {
		t.Fatalf("remove without remover should be a no-op: %v", err)
	}
}

func TestSyncWorker_ExportErrorPropagates(t *testing.T) {
	exp := &recordingExporter{err: errors.New("quota exceeded")}
	w := NewSyncWorker(seededStore(t), exp, exp, services.NewEngine(services.DefaultRuleConfig()), nil)

	if err := w.SyncPayslip(context.Background(), "a", 2); err == nil {
		t.Fatal("expected export error")
	}
	if err := w.RemovePayslip(context.Background(), "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(exp.removed) != 1 {
		t.Fatalf("expected removal, got %v", exp.removed)
	}
}

type fixedExports []core.PayslipSummary

func (f fixedExports) ListExported(context.Context) ([]core.PayslipSummary, error) {
	return f, nil
}

func TestSyncWorker_Reconcile(t *testing.T) {
	store := seededStore(t)
	p := &core.Payslip{ID: "b", Employee: "Luis", Period: core.Period{Year: 2025, Month: 4}}
	if _, err := store.Save(context.Background(), p, core.ZeroTotals()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	exp := &recordingExporter{}
	w := NewSyncWorker(store, exp, exp, services.NewEngine(services.DefaultRuleConfig()), nil)

	outside := fixedExports{
		{ID: "a", Version: 1}, // stale: stored version is 2
		{ID: "b", Version: 1}, // current
		{ID: "gone", Version: 5},
	}
	report, err := w.Reconcile(context.Background(), store, outside)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Exported != 1 || report.Removed != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(exp.removed) != 1 || exp.removed[0] != "gone" {
		t.Fatalf("expected gone removed, got %v", exp.removed)
	}
}

func TestSyncWorker_ReconcileCountsFailures(t *testing.T) {
	exp := &recordingExporter{err: errors.New("quota")}
	w := NewSyncWorker(seededStore(t), exp, exp, services.NewEngine(services.DefaultRuleConfig()), nil)

	report, err := w.Reconcile(context.Background(), seededStore(t), fixedExports{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Failed != 1 || report.Exported != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}
