package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"boleta/internal/core"
)

// CSVWriter writes a payslip as CSV: optional header metadata, one row per
// line item, then the four totals.
type CSVWriter struct {
	IncludeHeader bool
}

// Write writes the payslip in CSV format to out.
func (w *CSVWriter) Write(out io.Writer, p *core.Payslip, totals core.FormattedTotals) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		meta := [][]string{
			{"# Payslip", p.ID},
			{"# Employee", p.Employee},
			{"# Period", p.Period.String()},
			{"# Contribution mode", string(p.Rule.Mode.Normalize())},
		}
		for _, rec := range meta {
			if err := writer.Write(rec); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	header := []string{"Code", "Description", "Category", "Unit", "Quantity", "UnitAmount", "Subtotal"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, li := range p.Lines {
		rec := []string{
			li.Code,
			li.Description,
			string(li.Category.Normalize()),
			li.Unit,
			core.FormatAmount(core.NumberOrZero(li.Quantity)),
			core.FormatAmount(core.NumberOrZero(li.UnitAmount)),
			core.FormatAmount(li.Subtotal()),
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	footer := [][]string{
		{"", "Total ingresos", "", "", "", "", totals.Income},
		{"", "Total deducciones", "", "", "", "", totals.Deductions},
		{"", "Total aportes", "", "", "", "", totals.EmployerContributions},
		{"", "Neto a pagar", "", "", "", "", totals.NetPayable},
	}
	for _, rec := range footer {
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV totals: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
