package core

import "github.com/shopspring/decimal"

// Totals are the four figures derived from a payslip on every pass.
type Totals struct {
	Income                decimal.Decimal
	Deductions            decimal.Decimal
	EmployerContributions decimal.Decimal
	NetPayable            decimal.Decimal
}

// FormattedTotals is what gets published to collaborators: fixed two-decimal strings.
type FormattedTotals struct {
	Income                string `json:"income" yaml:"income"`
	Deductions            string `json:"deductions" yaml:"deductions"`
	EmployerContributions string `json:"employer_contributions" yaml:"employer_contributions"`
	NetPayable            string `json:"net_payable" yaml:"net_payable"`
}

// NetOf returns income minus deductions, floored at zero.
func NetOf(income, deductions decimal.Decimal) decimal.Decimal {
	net := income.Sub(deductions)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

// Add folds a subtotal into the bucket selected by category.
func (t *Totals) Add(c Category, subtotal decimal.Decimal) {
	switch c.Normalize() {
	case CategoryDeduction:
		t.Deductions = t.Deductions.Add(subtotal)
	case CategoryEmployerContribution:
		t.EmployerContributions = t.EmployerContributions.Add(subtotal)
	default:
		t.Income = t.Income.Add(subtotal)
	}
}

// SumLines folds every row into its bucket and derives net payable.
func SumLines(lines []LineItem) Totals {
	var t Totals
	for _, li := range lines {
		t.Add(li.Category, li.Subtotal())
	}
	t.NetPayable = NetOf(t.Income, t.Deductions)
	return t
}

// Format renders every figure with two decimals.
func (t Totals) Format() FormattedTotals {
	return FormattedTotals{
		Income:                FormatAmount(t.Income),
		Deductions:            FormatAmount(t.Deductions),
		EmployerContributions: FormatAmount(t.EmployerContributions),
		NetPayable:            FormatAmount(t.NetPayable),
	}
}

// ZeroTotals is published for an empty payslip.
func ZeroTotals() FormattedTotals {
	return Totals{}.Format()
}

// PayslipSummary is the list view of a stored payslip.
type PayslipSummary struct {
	ID       string
	Employee string
	Period   Period
	Version  int64
	Totals   FormattedTotals
}
