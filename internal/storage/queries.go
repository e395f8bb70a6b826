package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Payslip is a row of the payslips table.
type Payslip struct {
	ID                    string
	Employee              string
	PeriodYear            int64
	PeriodMonth           int64
	ContributionMode      string
	RatePercent           string
	Version               int64
	Income                string
	Deductions            string
	EmployerContributions string
	NetPayable            string
	SyncStatus            string
	SyncedVersion         int64
	CreatedAt             int64
	UpdatedAt             int64
}

// LineItem is a row of the line_items table.
type LineItem struct {
	PayslipID          string
	Position           int64
	Code               string
	Description        string
	Category           string
	Unit               string
	Quantity           string
	UnitAmount         string
	ContributionTarget bool
}

// SyncQueue is a row of the sync_queue table.
type SyncQueue struct {
	ID            int64
	PayslipID     string
	Version       int64
	Operation     string
	Status        string
	Attempts      int64
	LastError     string
	NextAttemptAt int64
	CreatedAt     int64
	UpdatedAt     int64
}

type GetSyncQueueStatsRow struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

const payslipColumns = `id, employee, period_year, period_month, contribution_mode, rate_percent,
	version, income, deductions, employer_contributions, net_payable, sync_status, synced_version,
	created_at, updated_at`

func scanPayslip(row interface{ Scan(...interface{}) error }) (Payslip, error) {
	var i Payslip
	err := row.Scan(
		&i.ID,
		&i.Employee,
		&i.PeriodYear,
		&i.PeriodMonth,
		&i.ContributionMode,
		&i.RatePercent,
		&i.Version,
		&i.Income,
		&i.Deductions,
		&i.EmployerContributions,
		&i.NetPayable,
		&i.SyncStatus,
		&i.SyncedVersion,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getPayslip = `SELECT ` + payslipColumns + ` FROM payslips WHERE id = ?`

func (q *Queries) GetPayslip(ctx context.Context, id string) (Payslip, error) {
	return scanPayslip(q.db.QueryRowContext(ctx, getPayslip, id))
}

const listPayslips = `SELECT ` + payslipColumns + ` FROM payslips
ORDER BY period_year DESC, period_month DESC, created_at ASC, id ASC`

func (q *Queries) ListPayslips(ctx context.Context) ([]Payslip, error) {
	rows, err := q.db.QueryContext(ctx, listPayslips)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Payslip
	for rows.Next() {
		i, err := scanPayslip(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPayslipVersion = `SELECT version FROM payslips WHERE id = ?`

func (q *Queries) GetPayslipVersion(ctx context.Context, id string) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, getPayslipVersion, id).Scan(&version)
	return version, err
}

const insertPayslip = `INSERT INTO payslips (
	id, employee, period_year, period_month, contribution_mode, rate_percent, version,
	income, deductions, employer_contributions, net_payable, sync_status, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`

func (q *Queries) InsertPayslip(ctx context.Context, arg Payslip) error {
	_, err := q.db.ExecContext(ctx, insertPayslip,
		arg.ID,
		arg.Employee,
		arg.PeriodYear,
		arg.PeriodMonth,
		arg.ContributionMode,
		arg.RatePercent,
		arg.Version,
		arg.Income,
		arg.Deductions,
		arg.EmployerContributions,
		arg.NetPayable,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updatePayslip = `UPDATE payslips SET
	employee = ?, period_year = ?, period_month = ?, contribution_mode = ?, rate_percent = ?,
	version = ?, income = ?, deductions = ?, employer_contributions = ?, net_payable = ?,
	sync_status = 'pending', updated_at = ?
WHERE id = ?`

func (q *Queries) UpdatePayslip(ctx context.Context, arg Payslip) error {
	_, err := q.db.ExecContext(ctx, updatePayslip,
		arg.Employee,
		arg.PeriodYear,
		arg.PeriodMonth,
		arg.ContributionMode,
		arg.RatePercent,
		arg.Version,
		arg.Income,
		arg.Deductions,
		arg.EmployerContributions,
		arg.NetPayable,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const deletePayslip = `DELETE FROM payslips WHERE id = ?`

func (q *Queries) DeletePayslip(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePayslip, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listLineItems = `SELECT payslip_id, position, code, description, category, unit, quantity,
	unit_amount, contribution_target
FROM line_items WHERE payslip_id = ? ORDER BY position`

func (q *Queries) ListLineItems(ctx context.Context, payslipID string) ([]LineItem, error) {
	rows, err := q.db.QueryContext(ctx, listLineItems, payslipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var i LineItem
		if err := rows.Scan(
			&i.PayslipID,
			&i.Position,
			&i.Code,
			&i.Description,
			&i.Category,
			&i.Unit,
			&i.Quantity,
			&i.UnitAmount,
			&i.ContributionTarget,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertLineItem = `INSERT INTO line_items (
	payslip_id, position, code, description, category, unit, quantity, unit_amount, contribution_target
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertLineItem(ctx context.Context, arg LineItem) error {
	_, err := q.db.ExecContext(ctx, insertLineItem,
		arg.PayslipID,
		arg.Position,
		arg.Code,
		arg.Description,
		arg.Category,
		arg.Unit,
		arg.Quantity,
		arg.UnitAmount,
		arg.ContributionTarget,
	)
	return err
}

const deleteLineItems = `DELETE FROM line_items WHERE payslip_id = ?`

func (q *Queries) DeleteLineItems(ctx context.Context, payslipID string) error {
	_, err := q.db.ExecContext(ctx, deleteLineItems, payslipID)
	return err
}

const markPayslipSynced = `UPDATE payslips SET sync_status = 'synced', synced_version = ?
WHERE id = ? AND version = ?`

func (q *Queries) MarkPayslipSynced(ctx context.Context, id string, version int64) error {
	_, err := q.db.ExecContext(ctx, markPayslipSynced, version, id, version)
	return err
}

const markPayslipSyncError = `UPDATE payslips SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkPayslipSyncError(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markPayslipSyncError, id)
	return err
}

const enqueueSync = `INSERT INTO sync_queue (
	payslip_id, version, operation, status, next_attempt_at, created_at, updated_at
) VALUES (?, ?, ?, 'pending', ?, ?, ?)`

func (q *Queries) EnqueueSync(ctx context.Context, payslipID string, version int64, operation string, now int64) error {
	_, err := q.db.ExecContext(ctx, enqueueSync, payslipID, version, operation, now, now, now)
	return err
}

const dequeueSyncBatch = `SELECT id, payslip_id, version, operation, status, attempts, last_error,
	next_attempt_at, created_at, updated_at
FROM sync_queue
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY id
LIMIT ?`

func (q *Queries) DequeueSyncBatch(ctx context.Context, now, limit int64) ([]SyncQueue, error) {
	rows, err := q.db.QueryContext(ctx, dequeueSyncBatch, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SyncQueue
	for rows.Next() {
		var i SyncQueue
		if err := rows.Scan(
			&i.ID,
			&i.PayslipID,
			&i.Version,
			&i.Operation,
			&i.Status,
			&i.Attempts,
			&i.LastError,
			&i.NextAttemptAt,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setSyncStatus = `UPDATE sync_queue SET status = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetSyncStatus(ctx context.Context, id int64, status string, now int64) error {
	_, err := q.db.ExecContext(ctx, setSyncStatus, status, now, id)
	return err
}

const markSyncFailed = `UPDATE sync_queue SET status = 'failed', attempts = attempts + 1,
	last_error = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) MarkSyncFailed(ctx context.Context, id int64, lastError string, now int64) error {
	_, err := q.db.ExecContext(ctx, markSyncFailed, lastError, now, id)
	return err
}

const incrementSyncAttempt = `UPDATE sync_queue SET status = 'pending', attempts = attempts + 1,
	last_error = ?, next_attempt_at = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) IncrementSyncAttempt(ctx context.Context, id int64, lastError string, nextAttemptAt, now int64) error {
	_, err := q.db.ExecContext(ctx, incrementSyncAttempt, lastError, nextAttemptAt, now, id)
	return err
}

const resetStaleProcessing = `UPDATE sync_queue SET status = 'pending', updated_at = ? WHERE status = 'processing'`

func (q *Queries) ResetStaleProcessing(ctx context.Context, now int64) error {
	_, err := q.db.ExecContext(ctx, resetStaleProcessing, now)
	return err
}

const cleanupCompletedSyncs = `DELETE FROM sync_queue WHERE status = 'completed' AND updated_at < ?`

func (q *Queries) CleanupCompletedSyncs(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupCompletedSyncs, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const retryFailedSyncs = `UPDATE sync_queue SET status = 'pending', attempts = 0, next_attempt_at = ?, updated_at = ?
WHERE status = 'failed'`

func (q *Queries) RetryFailedSyncs(ctx context.Context, now int64) error {
	_, err := q.db.ExecContext(ctx, retryFailedSyncs, now, now)
	return err
}

const getSyncQueueStats = `SELECT
	COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM sync_queue`

func (q *Queries) GetSyncQueueStats(ctx context.Context) (GetSyncQueueStatsRow, error) {
	var i GetSyncQueueStatsRow
	err := q.db.QueryRowContext(ctx, getSyncQueueStats).Scan(
		&i.Pending,
		&i.Processing,
		&i.Completed,
		&i.Failed,
	)
	return i, err
}
