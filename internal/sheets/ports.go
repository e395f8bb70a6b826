package sheets

import (
	"context"

	"boleta/internal/core"
)

// Ports for outbound adapters.
type (
	// PayslipReader loads stored payslips. Missing ids return core.ErrPayslipNotFound.
	PayslipReader interface {
		Get(ctx context.Context, id string) (*core.Payslip, error)
	}

	// PayslipLister returns a summary per stored payslip, newest period first.
	PayslipLister interface {
		List(ctx context.Context) ([]core.PayslipSummary, error)
	}

	// PayslipWriter stores a payslip together with the totals of the pass that
	// produced it and returns the new version.
	PayslipWriter interface {
		Save(ctx context.Context, p *core.Payslip, totals core.FormattedTotals) (version int64, err error)
	}

	PayslipDeleter interface {
		Delete(ctx context.Context, id string) error
	}

	// PayslipStore is everything the payslip service needs from a backend.
	PayslipStore interface {
		PayslipReader
		PayslipLister
		PayslipWriter
		PayslipDeleter
	}

	// PayslipExporter pushes a computed payslip to an external spreadsheet.
	PayslipExporter interface {
		ExportPayslip(ctx context.Context, p *core.Payslip, totals core.FormattedTotals) (ref string, err error)
	}
)

// PayslipRemover removes a previously exported payslip.
type PayslipRemover interface {
	DeletePayslip(ctx context.Context, id string) error
}

// ExportLister reads back what was exported, for reconciliation.
type ExportLister interface {
	ListExported(ctx context.Context) ([]core.PayslipSummary, error)
}
