package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"boleta/internal/core"
)

const sheetName = "Boleta"

// XLSXWriter renders a payslip into a single-sheet workbook.
type XLSXWriter struct{}

// Write writes the workbook to out.
func (XLSXWriter) Write(out io.Writer, p *core.Payslip, totals core.FormattedTotals) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	rows := [][]any{
		{"Empleado", p.Employee},
		{"Periodo", p.Period.String()},
		{"Modo aporte", string(p.Rule.Mode.Normalize()), "Tasa %", p.Rule.RatePercent},
		{},
		{"Código", "Concepto", "Tipo", "Unidad", "Cantidad", "Importe", "Subtotal"},
	}
	for _, li := range p.Lines {
		rows = append(rows, []any{
			li.Code,
			li.Description,
			li.Category.Label(),
			li.Unit,
			core.NumberOrZero(li.Quantity).InexactFloat64(),
			core.NumberOrZero(li.UnitAmount).InexactFloat64(),
			li.Subtotal().Round(2).InexactFloat64(),
		})
	}
	firstLine := 6
	lastLine := firstLine + len(p.Lines) - 1

	rows = append(rows,
		[]any{},
		[]any{"", "Total ingresos", "", "", "", "", totals.Income},
		[]any{"", "Total deducciones", "", "", "", "", totals.Deductions},
		[]any{"", "Total aportes", "", "", "", "", totals.EmployerContributions},
		[]any{"", "Neto a pagar", "", "", "", "", totals.NetPayable},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheetName, cell, &r); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetCellStyle(sheetName, "A5", "G5", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if len(p.Lines) > 0 {
		from, _ := excelize.CoordinatesToCellName(5, firstLine)
		to, _ := excelize.CoordinatesToCellName(7, lastLine)
		if err := f.SetCellStyle(sheetName, from, to, amount); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}
	if err := f.SetColWidth(sheetName, "B", "B", 36); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
