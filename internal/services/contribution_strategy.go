// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for the employer contribution
// rule. Each contribution mode has its own strategy: manual leaves the target
// row exactly as entered, auto solves the target row's unit amount so that its
// subtotal equals a percentage of the basic remuneration row.
package services

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"boleta/internal/core"
)

// RuleConfig carries the tunables of the contribution rule.
type RuleConfig struct {
	// DefaultRatePercent applies when the rate field is unparsable.
	DefaultRatePercent decimal.Decimal
	// BaseConcept is the case-insensitive substring identifying the basic
	// remuneration row among income rows.
	BaseConcept string
}

// DefaultRuleConfig returns the rule as printed on the payslip form: 9% of
// "remuneración básica".
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		DefaultRatePercent: decimal.NewFromInt(core.DefaultRatePercent),
		BaseConcept:        core.DefaultBaseConcept,
	}
}

// Adjustment describes what the auto strategy wrote into the target row.
type Adjustment struct {
	TargetIndex int
	// BaseIndex is -1 when no basic remuneration row matched.
	BaseIndex  int
	Base       decimal.Decimal
	Rate       decimal.Decimal
	Quantity   decimal.Decimal
	UnitAmount string
}

// ContributionStrategy is the strategy interface for the contribution rule.
type ContributionStrategy interface {
	// Apply mutates at most the target row's UnitAmount. It reports whether
	// the row was written.
	Apply(p *core.Payslip, cfg RuleConfig) (Adjustment, bool)
}

// ManualStrategy never touches the payslip: manual edits to the target row stick.
type ManualStrategy struct{}

// Apply is a no-op.
func (ManualStrategy) Apply(*core.Payslip, RuleConfig) (Adjustment, bool) {
	return Adjustment{}, false
}

// AutoStrategy overwrites the target row's unit amount on every pass.
type AutoStrategy struct{}

// Apply solves unitAmount = base × rate / quantity for the target row.
func (AutoStrategy) Apply(p *core.Payslip, cfg RuleConfig) (Adjustment, bool) {
	rate := p.Rule.Rate(cfg.DefaultRatePercent)

	base := decimal.Zero
	baseIdx, found := FindBaseRow(p.Lines, cfg.BaseConcept)
	if found {
		base = p.Lines[baseIdx].Subtotal()
	}

	targetIdx, ok := p.Target()
	if !ok {
		return Adjustment{}, false
	}

	// Divisor falls back to one, not zero.
	qty := p.Lines[targetIdx].DivisorQuantity()
	unit := decimal.Zero
	if qty.IsPositive() {
		unit = base.Mul(rate).Div(qty)
	}

	formatted := core.FormatAmount(unit)
	p.Lines[targetIdx].UnitAmount = formatted

	return Adjustment{
		TargetIndex: targetIdx,
		BaseIndex:   baseIdx,
		Base:        base,
		Rate:        rate,
		Quantity:    qty,
		UnitAmount:  formatted,
	}, true
}

var strategyRegistry = map[core.ContributionMode]ContributionStrategy{
	core.ModeManual: ManualStrategy{},
	core.ModeAuto:   AutoStrategy{},
}

// StrategyFor returns the strategy for mode. Unknown modes behave as manual.
func StrategyFor(mode core.ContributionMode) ContributionStrategy {
	if s, ok := strategyRegistry[mode.Normalize()]; ok {
		return s
	}
	return ManualStrategy{}
}

// ApplyIfAuto runs the strategy selected by the payslip's contribution mode.
func ApplyIfAuto(p *core.Payslip, cfg RuleConfig) (Adjustment, bool) {
	return StrategyFor(p.Rule.Mode).Apply(p, cfg)
}

// FindBaseRow returns the first income row whose lower-cased description
// contains concept. Later matches are ignored.
func FindBaseRow(lines []core.LineItem, concept string) (int, bool) {
	needle := lower(strings.TrimSpace(concept))
	if needle == "" {
		return -1, false
	}
	for i, li := range lines {
		if li.Category.Normalize() != core.CategoryIncome {
			continue
		}
		if strings.Contains(lower(li.Description), needle) {
			return i, true
		}
	}
	return -1, false
}

// lower builds a fresh Caser per call; casers are not safe for concurrent use.
func lower(s string) string {
	return cases.Lower(language.Spanish).String(s)
}
