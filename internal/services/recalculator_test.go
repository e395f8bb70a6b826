package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boleta/internal/core"
)

type recordingPublisher struct {
	calls []core.FormattedTotals
	err   error
}

func (r *recordingPublisher) PublishTotals(_ context.Context, _ string, _ int64, t core.FormattedTotals) error {
	r.calls = append(r.calls, t)
	return r.err
}

func TestRecalculateAutoExample(t *testing.T) {
	p := autoPayslip("9",
		line("Remuneración básica", core.CategoryIncome, "1", "1000.00"),
		line("AFP", core.CategoryDeduction, "1", "50.00"),
		target("1", "0"),
	)
	pub := &recordingPublisher{}
	e := NewEngine(DefaultRuleConfig(), pub)

	res := e.Recalculate(context.Background(), p)

	assert.Equal(t, "90.00", p.Lines[2].UnitAmount)
	want := core.FormattedTotals{
		Income:                "1000.00",
		Deductions:            "50.00",
		EmployerContributions: "90.00",
		NetPayable:            "950.00",
	}
	assert.Equal(t, want, res.Formatted)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, want, pub.calls[0])
	require.NotNil(t, res.Adjustment)
}

func TestRecalculateNetFloor(t *testing.T) {
	p := autoPayslip("9",
		line("Bono", core.CategoryIncome, "1", "100"),
		line("Préstamo", core.CategoryDeduction, "1", "300"),
	)
	p.Rule.Mode = core.ModeManual

	res := NewEngine(DefaultRuleConfig()).Recalculate(context.Background(), p)

	assert.Equal(t, "100.00", res.Formatted.Income)
	assert.Equal(t, "300.00", res.Formatted.Deductions)
	assert.Equal(t, "0.00", res.Formatted.NetPayable)
	assert.Nil(t, res.Adjustment)
}

func TestRecalculateEmptyPayslip(t *testing.T) {
	p := autoPayslip("9")
	pub := &recordingPublisher{}

	res := NewEngine(DefaultRuleConfig(), pub).Recalculate(context.Background(), p)

	assert.Equal(t, core.ZeroTotals(), res.Formatted)
	require.Len(t, pub.calls, 1)
}

func TestBlankQuantityDivergence(t *testing.T) {
	// Same blank quantity: zero in the deduction subtotal, one as the
	// contribution divisor.
	p := autoPayslip("10",
		line("Remuneración básica", core.CategoryIncome, "1", "1000"),
		line("AFP", core.CategoryDeduction, "", "50"),
		target("", "0"),
	)

	res := NewEngine(DefaultRuleConfig()).Compute(p)

	assert.Equal(t, "0.00", res.Formatted.Deductions)
	assert.Equal(t, "100.00", p.Lines[2].UnitAmount)
	// The target subtotal itself uses quantity-or-zero.
	assert.Equal(t, "0.00", res.Formatted.EmployerContributions)
	assert.Equal(t, "1000.00", res.Formatted.NetPayable)
}

func TestAutoToManualFreezesTarget(t *testing.T) {
	e := NewEngine(DefaultRuleConfig())
	p := autoPayslip("9",
		line("Remuneración básica", core.CategoryIncome, "1", "1000"),
		target("1", "0"),
	)
	e.Compute(p)
	require.Equal(t, "90.00", p.Lines[1].UnitAmount)

	p.Rule.Mode = core.ModeManual
	p.Lines[0].UnitAmount = "2000"
	res := e.Compute(p)

	assert.Equal(t, "90.00", p.Lines[1].UnitAmount)
	assert.Equal(t, "90.00", res.Formatted.EmployerContributions)
	assert.Equal(t, "2000.00", res.Formatted.Income)
}

func TestAggregateOrderIndependent(t *testing.T) {
	lines := []core.LineItem{
		line("a", core.CategoryIncome, "2", "10.10"),
		line("b", core.CategoryDeduction, "1", "3.33"),
		line("c", core.CategoryEmployerContribution, "1.5", "2"),
		line("d", "unknown", "1", "1"),
		line("e", core.CategoryIncome, "x", "100"),
	}
	reversed := make([]core.LineItem, len(lines))
	for i := range lines {
		reversed[len(lines)-1-i] = lines[i]
	}

	a := Aggregate(lines).Format()
	b := Aggregate(reversed).Format()

	assert.Equal(t, a, b)
	assert.Equal(t, "21.20", a.Income)
	assert.Equal(t, "3.33", a.Deductions)
	assert.Equal(t, "3.00", a.EmployerContributions)
	assert.Equal(t, "17.87", a.NetPayable)
}

func TestPublishErrorsDoNotStopOthers(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}
	e := NewEngine(DefaultRuleConfig(), failing)
	e.AddPublisher(ok)
	e.AddPublisher(nil)

	e.Publish(context.Background(), "p1", 3, core.ZeroTotals())

	assert.Len(t, failing.calls, 1)
	assert.Len(t, ok.calls, 1)
}
