package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"boleta/internal/core"
	"boleta/internal/export"
)

type record struct {
	payslip *core.Payslip
	totals  core.FormattedTotals
	seq     int
}

// Store keeps payslips in memory. Every read and write copies the payslip so
// callers never share rows with the store.
type Store struct {
	mu    sync.Mutex
	items map[string]*record
	seq   int
}

func New() *Store {
	return &Store{items: make(map[string]*record)}
}

// TotalsFunc computes the totals stored alongside a seeded payslip. It runs
// on a copy, so seeded rows stay as written.
type TotalsFunc func(p *core.Payslip) core.FormattedTotals

// NewFromDir seeds the store with every *.yaml payslip document found in
// base. Unreadable documents are logged and skipped. A nil totals func sums
// the rows without applying the contribution rule.
func NewFromDir(base string, totals TotalsFunc) *Store {
	if totals == nil {
		totals = func(p *core.Payslip) core.FormattedTotals {
			return core.SumLines(p.Lines).Format()
		}
	}
	s := New()
	if base == "" {
		return s
	}
	paths, err := filepath.Glob(filepath.Join(base, "*.yaml"))
	if err != nil {
		return s
	}
	sort.Strings(paths)
	for _, path := range paths {
		p, err := export.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping seed payslip", "path", path, "error", err)
			continue
		}
		if err := p.Validate(); err != nil {
			slog.Warn("Skipping invalid seed payslip", "path", path, "error", err)
			continue
		}
		s.put(p, totals(p.Clone()))
	}
	return s
}

// Get returns a copy of the stored payslip.
func (s *Store) Get(_ context.Context, id string) (*core.Payslip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return nil, core.ErrPayslipNotFound
	}
	return r.payslip.Clone(), nil
}

// List returns summaries, newest period first, then by creation order.
func (s *Store) List(_ context.Context) ([]core.PayslipSummary, error) {
	s.mu.Lock()
	recs := make([]*record, 0, len(s.items))
	for _, r := range s.items {
		recs = append(recs, r)
	}
	s.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].payslip.Period, recs[j].payslip.Period
		if a != b {
			if a.Year != b.Year {
				return a.Year > b.Year
			}
			return a.Month > b.Month
		}
		return recs[i].seq < recs[j].seq
	})

	out := make([]core.PayslipSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, core.PayslipSummary{
			ID:       r.payslip.ID,
			Employee: r.payslip.Employee,
			Period:   r.payslip.Period,
			Version:  r.payslip.Version,
			Totals:   r.totals,
		})
	}
	return out, nil
}

// Save stores a copy of p and bumps its version.
func (s *Store) Save(_ context.Context, p *core.Payslip, totals core.FormattedTotals) (int64, error) {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return 0, fmt.Errorf("save: %w", core.ErrEmptyPayslipID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(p, totals), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return core.ErrPayslipNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) put(p *core.Payslip, totals core.FormattedTotals) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(p, totals)
}

func (s *Store) putLocked(p *core.Payslip, totals core.FormattedTotals) int64 {
	cp := p.Clone()
	r, ok := s.items[cp.ID]
	if !ok {
		s.seq++
		r = &record{seq: s.seq}
		s.items[cp.ID] = r
	} else {
		cp.Version = r.payslip.Version
	}
	cp.Version++
	r.payslip = cp
	r.totals = totals
	return cp.Version
}

// DirExporter is the exporter used without Google credentials: each payslip
// becomes a YAML document in Dir.
type DirExporter struct {
	Dir string
}

func (e DirExporter) ExportPayslip(_ context.Context, p *core.Payslip, totals core.FormattedTotals) (string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.Dir, p.ID+".yaml")
	if err := export.WriteFile(path, p, &totals); err != nil {
		return "", err
	}
	return "file:" + path, nil
}

// DeletePayslip removes the exported document. Missing files are not an error.
func (e DirExporter) DeletePayslip(_ context.Context, id string) error {
	err := os.Remove(filepath.Join(e.Dir, id+".yaml"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove exported payslip: %w", err)
	}
	return nil
}

// ListExported reads back every exported document in Dir.
func (e DirExporter) ListExported(_ context.Context) ([]core.PayslipSummary, error) {
	paths, err := filepath.Glob(filepath.Join(e.Dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list exported payslips: %w", err)
	}
	sort.Strings(paths)
	out := make([]core.PayslipSummary, 0, len(paths))
	for _, path := range paths {
		p, err := export.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable export", "path", path, "error", err)
			continue
		}
		out = append(out, core.PayslipSummary{
			ID:       p.ID,
			Employee: p.Employee,
			Period:   p.Period,
			Version:  p.Version,
		})
	}
	return out, nil
}
