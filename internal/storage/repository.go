package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"boleta/internal/core"

	_ "modernc.org/sqlite"
)

const (
	OperationSync   = "sync"
	OperationDelete = "delete"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Get implements sheets.PayslipReader
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*core.Payslip, error) {
	row, err := r.queries.GetPayslip(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrPayslipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payslip: %w", err)
	}

	items, err := r.queries.ListLineItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}

	p := &core.Payslip{
		ID:       row.ID,
		Employee: row.Employee,
		Period:   core.Period{Year: int(row.PeriodYear), Month: int(row.PeriodMonth)},
		Rule: core.ContributionRule{
			Mode:        core.ParseContributionMode(row.ContributionMode),
			RatePercent: row.RatePercent,
		},
		Version: row.Version,
		Lines:   make([]core.LineItem, 0, len(items)),
	}
	for _, li := range items {
		p.Lines = append(p.Lines, core.LineItem{
			Code:               li.Code,
			Description:        li.Description,
			Category:           core.ParseCategory(li.Category),
			Unit:               li.Unit,
			Quantity:           li.Quantity,
			UnitAmount:         li.UnitAmount,
			ContributionTarget: li.ContributionTarget,
		})
	}
	return p, nil
}

// List implements sheets.PayslipLister
func (r *SQLiteRepository) List(ctx context.Context) ([]core.PayslipSummary, error) {
	rows, err := r.queries.ListPayslips(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payslips: %w", err)
	}
	out := make([]core.PayslipSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.PayslipSummary{
			ID:       row.ID,
			Employee: row.Employee,
			Period:   core.Period{Year: int(row.PeriodYear), Month: int(row.PeriodMonth)},
			Version:  row.Version,
			Totals: core.FormattedTotals{
				Income:                row.Income,
				Deductions:            row.Deductions,
				EmployerContributions: row.EmployerContributions,
				NetPayable:            row.NetPayable,
			},
		})
	}
	return out, nil
}

// Save implements sheets.PayslipWriter. The payslip, its rows and a sync
// queue entry are written in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, p *core.Payslip, totals core.FormattedTotals) (int64, error) {
	if p == nil || p.ID == "" {
		return 0, fmt.Errorf("save: %w", core.ErrEmptyPayslipID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	now := r.now().UnixMilli()
	row := Payslip{
		ID:                    p.ID,
		Employee:              p.Employee,
		PeriodYear:            int64(p.Period.Year),
		PeriodMonth:           int64(p.Period.Month),
		ContributionMode:      string(p.Rule.Mode.Normalize()),
		RatePercent:           p.Rule.RatePercent,
		Income:                totals.Income,
		Deductions:            totals.Deductions,
		EmployerContributions: totals.EmployerContributions,
		NetPayable:            totals.NetPayable,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	current, err := q.GetPayslipVersion(ctx, p.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		row.Version = 1
		if err := q.InsertPayslip(ctx, row); err != nil {
			return 0, fmt.Errorf("insert payslip: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("get payslip version: %w", err)
	default:
		row.Version = current + 1
		if err := q.UpdatePayslip(ctx, row); err != nil {
			return 0, fmt.Errorf("update payslip: %w", err)
		}
	}

	if err := q.DeleteLineItems(ctx, p.ID); err != nil {
		return 0, fmt.Errorf("delete line items: %w", err)
	}
	for i, li := range p.Lines {
		err := q.InsertLineItem(ctx, LineItem{
			PayslipID:          p.ID,
			Position:           int64(i),
			Code:               li.Code,
			Description:        li.Description,
			Category:           string(li.Category.Normalize()),
			Unit:               li.Unit,
			Quantity:           li.Quantity,
			UnitAmount:         li.UnitAmount,
			ContributionTarget: li.ContributionTarget,
		})
		if err != nil {
			return 0, fmt.Errorf("insert line item %d: %w", i, err)
		}
	}

	if err := q.EnqueueSync(ctx, p.ID, row.Version, OperationSync, now); err != nil {
		return 0, fmt.Errorf("enqueue sync: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Payslip saved to SQLite",
		"payslip_id", p.ID,
		"version", row.Version,
		"lines", len(p.Lines))

	return row.Version, nil
}

// Delete implements sheets.PayslipDeleter and queues removal from the
// external spreadsheet.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	version, err := q.GetPayslipVersion(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrPayslipNotFound
	}
	if err != nil {
		return fmt.Errorf("get payslip version: %w", err)
	}

	if err := q.DeleteLineItems(ctx, id); err != nil {
		return fmt.Errorf("delete line items: %w", err)
	}
	if _, err := q.DeletePayslip(ctx, id); err != nil {
		return fmt.Errorf("delete payslip: %w", err)
	}
	if err := q.EnqueueSync(ctx, id, version, OperationDelete, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("enqueue delete: %w", err)
	}
	return tx.Commit()
}

// MarkSynced marks a payslip version as exported. Older versions are ignored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	if err := r.queries.MarkPayslipSynced(ctx, id, version); err != nil {
		return fmt.Errorf("mark payslip synced: %w", err)
	}
	slog.DebugContext(ctx, "Payslip marked as synced", "payslip_id", id, "version", version)
	return nil
}

// MarkSyncError marks a payslip as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.queries.MarkPayslipSyncError(ctx, id); err != nil {
		return fmt.Errorf("mark payslip sync error: %w", err)
	}
	slog.WarnContext(ctx, "Payslip marked with sync error", "payslip_id", id)
	return nil
}

// SyncStatus returns the sync status column of a payslip.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, id string) (string, error) {
	row, err := r.queries.GetPayslip(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrPayslipNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get payslip: %w", err)
	}
	return row.SyncStatus, nil
}

func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	return r.queries.ResetStaleProcessing(ctx, r.now().UnixMilli())
}

// DequeueSyncBatch returns pending items whose retry time has come.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueue, error) {
	items, err := r.queries.DequeueSyncBatch(ctx, r.now().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	return r.queries.SetSyncStatus(ctx, id, "processing", r.now().UnixMilli())
}

func (r *SQLiteRepository) MarkSyncComplete(ctx context.Context, id int64) error {
	return r.queries.SetSyncStatus(ctx, id, "completed", r.now().UnixMilli())
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, lastError string) error {
	return r.queries.MarkSyncFailed(ctx, id, lastError, r.now().UnixMilli())
}

// IncrementSyncAttempt puts the item back in the queue with exponential
// backoff: 30s, 60s, 120s...
func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, item SyncQueue, lastError string) error {
	now := r.now()
	delay := 30 * time.Second << uint(min(item.Attempts, 10))
	return r.queries.IncrementSyncAttempt(ctx, item.ID, lastError, now.Add(delay).UnixMilli(), now.UnixMilli())
}

func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, before time.Time) error {
	n, err := r.queries.CleanupCompletedSyncs(ctx, before.UnixMilli())
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	if n > 0 {
		slog.DebugContext(ctx, "Cleaned up completed sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (*GetSyncQueueStatsRow, error) {
	stats, err := r.queries.GetSyncQueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sync queue stats: %w", err)
	}
	return &stats, nil
}

func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) error {
	return r.queries.RetryFailedSyncs(ctx, r.now().UnixMilli())
}
