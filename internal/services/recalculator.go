package services

import (
	"context"
	"log/slog"
	"sync"

	"boleta/internal/core"
)

// TotalsPublisher receives the formatted totals of every recomputation pass.
type TotalsPublisher interface {
	PublishTotals(ctx context.Context, payslipID string, version int64, totals core.FormattedTotals) error
}

// PublisherFunc adapts a function to TotalsPublisher.
type PublisherFunc func(ctx context.Context, payslipID string, version int64, totals core.FormattedTotals) error

func (f PublisherFunc) PublishTotals(ctx context.Context, payslipID string, version int64, totals core.FormattedTotals) error {
	return f(ctx, payslipID, version, totals)
}

// Result is the outcome of one recomputation pass.
type Result struct {
	Totals     core.Totals
	Formatted  core.FormattedTotals
	Adjustment *Adjustment
}

// Engine runs recomputation passes: contribution rule first, then aggregation.
// A pass never fails; malformed numeric fields count as zero.
type Engine struct {
	rule RuleConfig

	mu         sync.RWMutex
	publishers []TotalsPublisher
}

// NewEngine creates an engine with the given rule configuration and publishers.
func NewEngine(rule RuleConfig, publishers ...TotalsPublisher) *Engine {
	return &Engine{
		rule:       rule,
		publishers: publishers,
	}
}

// RuleConfig returns the engine's contribution rule settings.
func (e *Engine) RuleConfig() RuleConfig {
	return e.rule
}

// AddPublisher registers another outward collaborator.
func (e *Engine) AddPublisher(p TotalsPublisher) {
	if p == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishers = append(e.publishers, p)
}

// Compute runs the contribution rule on p (mutating at most the target row)
// and folds all rows into totals. It does not publish.
func (e *Engine) Compute(p *core.Payslip) Result {
	var res Result
	if adj, ok := ApplyIfAuto(p, e.rule); ok {
		res.Adjustment = &adj
	}
	res.Totals = Aggregate(p.Lines)
	res.Formatted = res.Totals.Format()
	return res
}

// Publish pushes formatted totals to every registered publisher. Publisher
// errors are logged and do not stop the remaining publishers.
func (e *Engine) Publish(ctx context.Context, payslipID string, version int64, totals core.FormattedTotals) {
	e.mu.RLock()
	pubs := append([]TotalsPublisher(nil), e.publishers...)
	e.mu.RUnlock()

	for _, pub := range pubs {
		if err := pub.PublishTotals(ctx, payslipID, version, totals); err != nil {
			slog.WarnContext(ctx, "Failed to publish totals",
				"payslip_id", payslipID,
				"version", version,
				"error", err)
		}
	}
}

// Recalculate is a full pass: Compute followed by Publish.
func (e *Engine) Recalculate(ctx context.Context, p *core.Payslip) Result {
	res := e.Compute(p)
	if res.Adjustment != nil {
		slog.DebugContext(ctx, "Contribution row adjusted",
			"payslip_id", p.ID,
			"row", res.Adjustment.TargetIndex,
			"base", core.FormatAmount(res.Adjustment.Base),
			"rate", res.Adjustment.Rate.String(),
			"unit_amount", res.Adjustment.UnitAmount)
	}
	e.Publish(ctx, p.ID, p.Version, res.Formatted)
	return res
}

// Aggregate folds line subtotals into the three category buckets and derives
// net payable. Row order has no effect on the result.
func Aggregate(lines []core.LineItem) core.Totals {
	return core.SumLines(lines)
}
