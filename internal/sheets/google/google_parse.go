package google

import (
	"fmt"
	"strconv"
	"strings"

	"boleta/internal/core"
)

// parseSummaries converts the values matrix of the export sheet (as returned
// by the Sheets API) into payslip summaries. Columns are located by their
// header so reordered sheets still parse. Blank rows (cleared by
// DeletePayslip) are skipped.
func parseSummaries(values [][]any) ([]core.PayslipSummary, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	cols := map[string]int{}
	var missing []string
	for _, name := range []string{"ID", "Empleado", "Periodo", "Versión", "Ingresos", "Deducciones", "Aportes", "Neto a pagar"} {
		idx := indexOf(headers, name)
		if idx == -1 {
			missing = append(missing, name)
		}
		cols[name] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected sheet header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	out := make([]core.PayslipSummary, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		id := safeGet(row, cols["ID"])
		if id == "" {
			continue
		}
		s := core.PayslipSummary{
			ID:       id,
			Employee: safeGet(row, cols["Empleado"]),
			Totals: core.FormattedTotals{
				Income:                safeGet(row, cols["Ingresos"]),
				Deductions:            safeGet(row, cols["Deducciones"]),
				EmployerContributions: safeGet(row, cols["Aportes"]),
				NetPayable:            safeGet(row, cols["Neto a pagar"]),
			},
		}
		if p, err := core.ParsePeriod(safeGet(row, cols["Periodo"])); err == nil {
			s.Period = p
		}
		if v, err := strconv.ParseInt(safeGet(row, cols["Versión"]), 10, 64); err == nil {
			s.Version = v
		}
		out = append(out, s)
	}
	return out, nil
}

func toStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func safeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
