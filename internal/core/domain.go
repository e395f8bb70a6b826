package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CategoryIncome               Category = "income"
	CategoryDeduction            Category = "deduction"
	CategoryEmployerContribution Category = "employer_contribution"
)

const (
	ModeManual ContributionMode = "manual"
	ModeAuto   ContributionMode = "auto"
)

const (
	// DefaultRatePercent applies when the rate field cannot be parsed.
	DefaultRatePercent = 9
	// DefaultBaseConcept is matched, lower-cased, against income descriptions
	// to find the basic remuneration row.
	DefaultBaseConcept = "remuneración básica"
	// NewLineDescription is the description given to rows added without one.
	NewLineDescription = "Nuevo concepto"
)

type (
	// Category selects the bucket a line item folds into.
	Category string

	// ContributionMode is the two-state switch of the contribution rule.
	ContributionMode string

	// Period identifies the payroll month of a payslip.
	Period struct {
		Year  int
		Month int
	}

	// LineItem is one payslip row. Quantity and UnitAmount keep the raw field
	// text; they are parsed on every recomputation pass and never cached.
	LineItem struct {
		Code        string
		Description string
		Category    Category
		Unit        string
		Quantity    string
		UnitAmount  string
		// ContributionTarget marks the row whose unit amount the contribution
		// rule recomputes in auto mode.
		ContributionTarget bool
	}

	// ContributionRule holds the contribution controls of a payslip.
	ContributionRule struct {
		Mode        ContributionMode
		RatePercent string
	}

	// Payslip is the context object a recomputation pass operates on.
	Payslip struct {
		ID       string
		Employee string
		Period   Period
		Lines    []LineItem
		Rule     ContributionRule
		Version  int64
	}
)

var (
	ErrEmptyPayslipID   = errors.New("empty payslip id")
	ErrEmptyEmployee    = errors.New("empty employee")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidYear      = errors.New("invalid year")
	ErrMultipleTargets  = errors.New("more than one contribution target row")
	ErrDescriptionLimit = errors.New("description too long (max 200 characters)")
	ErrEmployeeLimit    = errors.New("employee too long (max 200 characters)")
	ErrPayslipNotFound  = errors.New("payslip not found")
	ErrLineOutOfRange   = errors.New("line index out of range")
)

// ParseCategory maps a raw selector value to a Category. The form values of
// the printed payslip (ingreso, deduccion, aporte) are accepted as aliases.
// Empty and unknown values fold into CategoryIncome.
func ParseCategory(raw string) Category {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "deduction", "deduccion", "deducción":
		return CategoryDeduction
	case "employer_contribution", "employercontribution", "aporte", "aporte empleador":
		return CategoryEmployerContribution
	default:
		return CategoryIncome
	}
}

// Normalize returns the canonical form of c.
func (c Category) Normalize() Category {
	return ParseCategory(string(c))
}

// Label returns the Spanish label printed on the payslip.
func (c Category) Label() string {
	switch c.Normalize() {
	case CategoryDeduction:
		return "Deducción"
	case CategoryEmployerContribution:
		return "Aporte empleador"
	default:
		return "Ingreso"
	}
}

// ParseContributionMode returns ModeAuto only for "auto"; anything else is manual.
func ParseContributionMode(raw string) ContributionMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeAuto)) {
		return ModeAuto
	}
	return ModeManual
}

// Normalize returns the canonical form of m.
func (m ContributionMode) Normalize() ContributionMode {
	return ParseContributionMode(string(m))
}

// Subtotal returns quantity times unit amount, unparsable fields counting as zero.
func (li LineItem) Subtotal() decimal.Decimal {
	return NumberOrZero(li.Quantity).Mul(NumberOrZero(li.UnitAmount))
}

// DivisorQuantity returns the quantity used to solve the unit amount of the
// contribution target. Unlike Subtotal it falls back to one.
func (li LineItem) DivisorQuantity() decimal.Decimal {
	return NumberOrOne(li.Quantity)
}

// NewLine returns the row appended by an empty add-row action.
func NewLine() LineItem {
	return LineItem{
		Description: NewLineDescription,
		Category:    CategoryIncome,
		Quantity:    "1",
		UnitAmount:  "0.00",
	}
}

// DefaultLines returns the rows a blank payslip starts with: basic
// remuneration, the private pension deduction and the EsSalud employer
// contribution, which carries the contribution target marker.
func DefaultLines() []LineItem {
	return []LineItem{
		{Code: "0121", Description: "Remuneración básica", Category: CategoryIncome, Unit: "Mes", Quantity: "1", UnitAmount: "0.00"},
		{Code: "0608", Description: "AFP - Aporte obligatorio", Category: CategoryDeduction, Unit: "Mes", Quantity: "1", UnitAmount: "0.00"},
		{Code: "0804", Description: "EsSalud", Category: CategoryEmployerContribution, Unit: "Mes", Quantity: "1", UnitAmount: "0.00", ContributionTarget: true},
	}
}

// RatePercentValue returns the configured percentage, falling back to
// defaultPercent when the field is unparsable or zero and clamping negatives
// to zero.
func (r ContributionRule) RatePercentValue(defaultPercent decimal.Decimal) decimal.Decimal {
	p, ok := ParseNumber(r.RatePercent)
	if !ok || p.IsZero() {
		p = defaultPercent
	}
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// Rate returns the rule rate as a fraction (0.09 for 9%).
func (r ContributionRule) Rate(defaultPercent decimal.Decimal) decimal.Decimal {
	return Percent(r.RatePercentValue(defaultPercent))
}

// Target returns the index of the first row carrying the contribution marker.
func (p *Payslip) Target() (int, bool) {
	for i := range p.Lines {
		if p.Lines[i].ContributionTarget {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy so callers can read a snapshot outside the writer lock.
func (p *Payslip) Clone() *Payslip {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Lines = append([]LineItem(nil), p.Lines...)
	return &cp
}

func (p Period) Validate() error {
	if p.Year < 1900 || p.Year > 9999 {
		return ErrInvalidYear
	}
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	var p Period
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%4d-%2d", &p.Year, &p.Month); err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", s, err)
	}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate checks the payslip header. Numeric row fields are never validated:
// malformed values are coerced during recomputation.
func (p *Payslip) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyPayslipID
	}
	if strings.TrimSpace(p.Employee) == "" {
		return ErrEmptyEmployee
	}
	if len(p.Employee) > 200 {
		return ErrEmployeeLimit
	}
	if err := p.Period.Validate(); err != nil {
		return err
	}
	targets := 0
	for _, li := range p.Lines {
		if len(li.Description) > 200 {
			return ErrDescriptionLimit
		}
		if li.ContributionTarget {
			targets++
		}
	}
	if targets > 1 {
		return ErrMultipleTargets
	}
	return nil
}
