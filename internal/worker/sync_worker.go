package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"boleta/internal/amqp"
	"boleta/internal/core"
	"boleta/internal/log"
	"boleta/internal/services"
	"boleta/internal/sheets"
)

// SyncMarker records successful exports. storage.SQLiteRepository implements it.
type SyncMarker interface {
	MarkSynced(ctx context.Context, id string, version int64) error
}

// SyncWorker exports stored payslips to the external spreadsheet.
type SyncWorker struct {
	store    sheets.PayslipReader
	exporter sheets.PayslipExporter
	remover  sheets.PayslipRemover
	engine   *services.Engine
	marker   SyncMarker
	log      *log.StructuredLogger
}

var _ services.PayslipSyncer = (*SyncWorker)(nil)

// NewSyncWorker wires the worker. remover and marker may be nil.
func NewSyncWorker(store sheets.PayslipReader, exporter sheets.PayslipExporter, remover sheets.PayslipRemover, engine *services.Engine, marker SyncMarker) *SyncWorker {
	return &SyncWorker{
		store:    store,
		exporter: exporter,
		remover:  remover,
		engine:   engine,
		marker:   marker,
		log:      log.NewStructuredLogger(log.Default(log.ComponentWorker)),
	}
}

// HandleRecalculated processes a payslip_recalculated message from AMQP.
func (w *SyncWorker) HandleRecalculated(ctx context.Context, msg *amqp.PayslipRecalculatedMessage) error {
	slog.DebugContext(ctx, "Processing recalculated message",
		"payslip_id", msg.ID,
		"version", msg.Version)
	return w.SyncPayslip(ctx, msg.ID, msg.Version)
}

// SyncPayslip exports the stored payslip. Requests for a version older than
// the stored one are skipped: the newer version has its own request. Deleted
// payslips are skipped too.
func (w *SyncWorker) SyncPayslip(ctx context.Context, id string, version int64) error {
	p, err := w.store.Get(ctx, id)
	if errors.Is(err, core.ErrPayslipNotFound) {
		slog.InfoContext(ctx, "Payslip gone, skipping export", "payslip_id", id, "version", version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get payslip from storage: %w", err)
	}
	if p.Version > version {
		slog.DebugContext(ctx, "Skipping stale export request",
			"payslip_id", id,
			"requested_version", version,
			"stored_version", p.Version)
		return nil
	}

	// Stored rows are already the output of a pass; recomputing them only
	// derives the totals.
	res := w.engine.Compute(p.Clone())

	ref, err := w.exporter.ExportPayslip(ctx, p, res.Formatted)
	if err != nil {
		return fmt.Errorf("export payslip %s: %w", id, err)
	}

	if w.marker != nil {
		if err := w.marker.MarkSynced(ctx, id, p.Version); err != nil {
			slog.WarnContext(ctx, "Failed to mark payslip as synced",
				"payslip_id", id, "error", err)
		}
	}

	w.log.LogPayslipExported(ctx, id, p.Version, ref)
	return nil
}

// RemovePayslip deletes the exported copy of a payslip.
func (w *SyncWorker) RemovePayslip(ctx context.Context, id string) error {
	if w.remover == nil {
		slog.WarnContext(ctx, "No remover configured, skipping delete", "payslip_id", id)
		return nil
	}
	if err := w.remover.DeletePayslip(ctx, id); err != nil {
		return fmt.Errorf("remove exported payslip %s: %w", id, err)
	}
	return nil
}

// ReconcileReport counts what a reconciliation pass changed.
type ReconcileReport struct {
	Exported int
	Removed  int
	Failed   int
}

// Reconcile compares the stored payslips with what the exporter holds:
// stored payslips that are missing or older outside are exported again, and
// exported payslips that no longer exist are removed. Individual failures are
// logged and counted; the pass continues.
func (w *SyncWorker) Reconcile(ctx context.Context, stored sheets.PayslipLister, exported sheets.ExportLister) (ReconcileReport, error) {
	var report ReconcileReport

	have, err := stored.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list stored payslips: %w", err)
	}
	out, err := exported.ListExported(ctx)
	if err != nil {
		return report, fmt.Errorf("list exported payslips: %w", err)
	}

	outside := make(map[string]int64, len(out))
	for _, s := range out {
		outside[s.ID] = s.Version
	}

	for _, s := range have {
		if v, ok := outside[s.ID]; ok && v >= s.Version {
			delete(outside, s.ID)
			continue
		}
		delete(outside, s.ID)
		if err := w.SyncPayslip(ctx, s.ID, s.Version); err != nil {
			slog.WarnContext(ctx, "Reconcile export failed", "payslip_id", s.ID, "error", err)
			report.Failed++
			continue
		}
		report.Exported++
	}

	for id := range outside {
		if err := w.RemovePayslip(ctx, id); err != nil {
			slog.WarnContext(ctx, "Reconcile removal failed", "payslip_id", id, "error", err)
			report.Failed++
			continue
		}
		report.Removed++
	}

	slog.InfoContext(ctx, "Reconciliation complete",
		"exported", report.Exported,
		"removed", report.Removed,
		"failed", report.Failed)
	return report, nil
}
