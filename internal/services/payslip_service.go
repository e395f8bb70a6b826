package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"boleta/internal/cache"
	"boleta/internal/core"
	"boleta/internal/sheets"
)

// Snapshot is a payslip as it stands after a recomputation pass.
type Snapshot struct {
	Payslip    *core.Payslip
	Totals     core.FormattedTotals
	Adjustment *Adjustment
}

// LinePatch carries the fields of a row edit; nil fields are left unchanged.
type LinePatch struct {
	Code               *string
	Description        *string
	Category           *core.Category
	Unit               *string
	Quantity           *string
	UnitAmount         *string
	ContributionTarget *bool
}

// ContributionPatch carries a change to the contribution controls.
type ContributionPatch struct {
	Mode        *core.ContributionMode
	RatePercent *string
}

// NewPayslip is the input of PayslipService.Create.
type NewPayslip struct {
	Employee string
	Period   core.Period
	// Lines nil seeds the default rows; an empty non-nil slice starts blank.
	Lines []core.LineItem
	Rule  core.ContributionRule
}

// PayslipService orchestrates payslip edits. Every edit triggers one full
// recomputation pass, persisted and then published. Passes on the same payslip
// are serialized so the rule's read-then-write step never interleaves.
type PayslipService struct {
	store  sheets.PayslipStore
	engine *Engine
	totals cache.Cache[core.FormattedTotals]
	group  singleflight.Group
	locks  *keyedMutex
	newID  func() string
}

// NewPayslipService wires a store and engine. The totals cache may be nil.
func NewPayslipService(store sheets.PayslipStore, engine *Engine, totals cache.Cache[core.FormattedTotals]) *PayslipService {
	s := &PayslipService{
		store:  store,
		engine: engine,
		totals: totals,
		locks:  newKeyedMutex(),
		newID:  uuid.NewString,
	}
	if totals != nil {
		engine.AddPublisher(PublisherFunc(func(_ context.Context, id string, _ int64, t core.FormattedTotals) error {
			totals.Set(id, t)
			return nil
		}))
	}
	return s
}

// Create stores a new payslip after an initial pass.
func (s *PayslipService) Create(ctx context.Context, in NewPayslip) (*Snapshot, error) {
	lines := in.Lines
	if lines == nil {
		lines = core.DefaultLines()
	}
	p := &core.Payslip{
		ID:       s.newID(),
		Employee: in.Employee,
		Period:   in.Period,
		Lines:    append([]core.LineItem(nil), lines...),
		Rule: core.ContributionRule{
			Mode:        in.Rule.Mode.Normalize(),
			RatePercent: in.Rule.RatePercent,
		},
	}
	for i := range p.Lines {
		p.Lines[i].Category = p.Lines[i].Category.Normalize()
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate payslip: %w", err)
	}

	unlock := s.locks.Lock(p.ID)
	defer unlock()

	snap, err := s.pass(ctx, p)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Payslip created",
		"payslip_id", p.ID,
		"employee", p.Employee,
		"period", p.Period.String(),
		"lines", len(p.Lines))
	return snap, nil
}

// Get returns the stored payslip and its totals without mutating anything.
func (s *PayslipService) Get(ctx context.Context, id string) (*Snapshot, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	totals, err := s.Totals(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Payslip: p, Totals: totals}, nil
}

// List returns summaries of all stored payslips.
func (s *PayslipService) List(ctx context.Context) ([]core.PayslipSummary, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payslips: %w", err)
	}
	return out, nil
}

// Totals returns the last published totals of a payslip. Cache misses
// recompute on a copy; concurrent misses for one id share a single load.
// The fill holds the payslip's lock so it never overwrites totals published
// by a later pass, nor re-adds totals of a deleted payslip.
func (s *PayslipService) Totals(ctx context.Context, id string) (core.FormattedTotals, error) {
	if s.totals != nil {
		if t, ok := s.totals.Get(id); ok {
			return t, nil
		}
	}
	v, err, _ := s.group.Do(id, func() (any, error) {
		unlock := s.locks.Lock(id)
		defer unlock()

		if s.totals != nil {
			if t, ok := s.totals.Get(id); ok {
				return t, nil
			}
		}
		p, err := s.load(ctx, id)
		if err != nil {
			return core.FormattedTotals{}, err
		}
		res := s.engine.Compute(p.Clone())
		if s.totals != nil {
			s.totals.Set(id, res.Formatted)
		}
		return res.Formatted, nil
	})
	if err != nil {
		return core.FormattedTotals{}, err
	}
	return v.(core.FormattedTotals), nil
}

// Delete removes a payslip.
func (s *PayslipService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete payslip %s: %w", id, err)
	}
	if s.totals != nil {
		s.totals.Delete(id)
	}
	slog.InfoContext(ctx, "Payslip deleted", "payslip_id", id)
	return nil
}

// AddLine appends a row. A nil line appends core.NewLine().
func (s *PayslipService) AddLine(ctx context.Context, id string, line *core.LineItem) (*Snapshot, error) {
	return s.mutate(ctx, id, func(p *core.Payslip) error {
		li := core.NewLine()
		if line != nil {
			li = *line
			li.Category = li.Category.Normalize()
		}
		if li.ContributionTarget {
			clearTarget(p)
		}
		p.Lines = append(p.Lines, li)
		return nil
	})
}

// UpdateLine applies patch to the row at index.
func (s *PayslipService) UpdateLine(ctx context.Context, id string, index int, patch LinePatch) (*Snapshot, error) {
	return s.mutate(ctx, id, func(p *core.Payslip) error {
		if index < 0 || index >= len(p.Lines) {
			return fmt.Errorf("line %d of %d: %w", index, len(p.Lines), core.ErrLineOutOfRange)
		}
		li := &p.Lines[index]
		if patch.Code != nil {
			li.Code = *patch.Code
		}
		if patch.Description != nil {
			li.Description = *patch.Description
		}
		if patch.Category != nil {
			li.Category = patch.Category.Normalize()
		}
		if patch.Unit != nil {
			li.Unit = *patch.Unit
		}
		if patch.Quantity != nil {
			li.Quantity = *patch.Quantity
		}
		if patch.UnitAmount != nil {
			li.UnitAmount = *patch.UnitAmount
		}
		if patch.ContributionTarget != nil {
			if *patch.ContributionTarget {
				clearTarget(p)
			}
			p.Lines[index].ContributionTarget = *patch.ContributionTarget
		}
		return nil
	})
}

// RemoveLine deletes the row at index, preserving the order of the others.
func (s *PayslipService) RemoveLine(ctx context.Context, id string, index int) (*Snapshot, error) {
	return s.mutate(ctx, id, func(p *core.Payslip) error {
		if index < 0 || index >= len(p.Lines) {
			return fmt.Errorf("line %d of %d: %w", index, len(p.Lines), core.ErrLineOutOfRange)
		}
		p.Lines = append(p.Lines[:index], p.Lines[index+1:]...)
		return nil
	})
}

// SetContribution changes the contribution mode and/or rate. The new mode
// takes effect in the pass this call triggers.
func (s *PayslipService) SetContribution(ctx context.Context, id string, patch ContributionPatch) (*Snapshot, error) {
	return s.mutate(ctx, id, func(p *core.Payslip) error {
		if patch.Mode != nil {
			from := p.Rule.Mode
			p.Rule.Mode = patch.Mode.Normalize()
			if from != p.Rule.Mode {
				slog.InfoContext(ctx, "Contribution mode changed",
					"payslip_id", p.ID,
					"from", string(from),
					"to", string(p.Rule.Mode))
			}
		}
		if patch.RatePercent != nil {
			p.Rule.RatePercent = *patch.RatePercent
		}
		return nil
	})
}

// Recalculate runs a pass with no edit.
func (s *PayslipService) Recalculate(ctx context.Context, id string) (*Snapshot, error) {
	return s.mutate(ctx, id, func(*core.Payslip) error { return nil })
}

func (s *PayslipService) mutate(ctx context.Context, id string, edit func(p *core.Payslip) error) (*Snapshot, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := edit(p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate payslip: %w", err)
	}
	return s.pass(ctx, p)
}

// pass must be called with the payslip's lock held.
func (s *PayslipService) pass(ctx context.Context, p *core.Payslip) (*Snapshot, error) {
	res := s.engine.Compute(p)

	version, err := s.store.Save(ctx, p, res.Formatted)
	if err != nil {
		return nil, fmt.Errorf("save payslip %s: %w", p.ID, err)
	}
	p.Version = version

	s.engine.Publish(ctx, p.ID, version, res.Formatted)

	return &Snapshot{
		Payslip:    p.Clone(),
		Totals:     res.Formatted,
		Adjustment: res.Adjustment,
	}, nil
}

func (s *PayslipService) load(ctx context.Context, id string) (*core.Payslip, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrPayslipNotFound) {
			return nil, fmt.Errorf("payslip %s: %w", id, core.ErrPayslipNotFound)
		}
		return nil, fmt.Errorf("load payslip %s: %w", id, err)
	}
	return p, nil
}

// clearTarget removes the marker from every row so at most one row carries it.
func clearTarget(p *core.Payslip) {
	for i := range p.Lines {
		p.Lines[i].ContributionTarget = false
	}
}

// keyedMutex hands out one mutex per payslip id and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
