package http

import (
	"bytes"
	"fmt"
	"net/http"
	"sync/atomic"

	"boleta/internal/core"
	"boleta/internal/export"
	"boleta/internal/log"
	"boleta/internal/services"
)

func (s *Server) handleListPayslips(w http.ResponseWriter, r *http.Request) {
	items, err := s.payslips.List(r.Context())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(newSummaryViews(items)).Write(w)
}

func (s *Server) handleCreatePayslip(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	period, err := ParsePeriodParam(p, s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	in := services.NewPayslip{
		Employee: p.Get("employee"),
		Period:   period,
		Rule: core.ContributionRule{
			Mode:        core.ParseContributionMode(p.Get("mode")),
			RatePercent: p.Get("rate"),
		},
	}
	if p.IsJSON() && p.Has("lines") {
		var body createLines
		if err := p.DecodeJSON(&body); err != nil {
			BadRequestError("invalid lines").Write(w)
			return
		}
		in.Lines = make([]core.LineItem, 0, len(body.Lines))
		for _, l := range body.Lines {
			in.Lines = append(in.Lines, l.lineItem())
		}
	}

	snap, err := s.payslips.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.recalculated(r, log.OpCreate, snap)
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/payslips/"+snap.Payslip.ID).
		TriggerPayslipRecalculated(snap.Payslip.ID, snap.Payslip.Version).
		JSON(newPayslipView(snap)).
		Write(w)
}

func (s *Server) handleGetPayslip(w http.ResponseWriter, r *http.Request) {
	snap, err := s.payslips.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(newPayslipView(snap)).Write(w)
}

func (s *Server) handleDeletePayslip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.payslips.Delete(r.Context(), id); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NewResponse().
		Status(http.StatusNoContent).
		TriggerPayslipDeleted(id).
		Write(w)
}

func (s *Server) handlePrintPayslip(w http.ResponseWriter, r *http.Request) {
	snap, err := s.payslips.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logFailure(r, log.OpRender, err)
		}
		http.Error(w, errorMessage(status, err), status)
		return
	}
	s.render(w, r, "payslip.html", newPayslipView(snap))
}

func (s *Server) handleAddLine(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	var line *core.LineItem
	if p.Has("description") || p.Has("quantity") || p.Has("unit_amount") || p.Has("category") || p.Has("code") {
		li := core.NewLine()
		li.Code = p.Get("code")
		if p.Has("description") {
			li.Description = p.Get("description")
		}
		if p.Has("category") {
			li.Category = core.ParseCategory(p.Get("category"))
		}
		li.Unit = p.Get("unit")
		if p.Has("quantity") {
			li.Quantity = p.Get("quantity")
		}
		if p.Has("unit_amount") {
			li.UnitAmount = p.Get("unit_amount")
		}
		li.ContributionTarget = p.Bool("contribution_target")
		line = &li
	}

	s.mutated(w, r, http.StatusCreated, func() (*services.Snapshot, error) {
		return s.payslips.AddLine(r.Context(), r.PathValue("id"), line)
	})
}

func (s *Server) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	idx, err := ParseLineIndex(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	patch := services.LinePatch{
		Code:        p.Optional("code"),
		Description: p.Optional("description"),
		Unit:        p.Optional("unit"),
		Quantity:    p.Optional("quantity"),
		UnitAmount:  p.Optional("unit_amount"),
	}
	if p.Has("category") {
		c := core.ParseCategory(p.Get("category"))
		patch.Category = &c
	}
	if p.Has("contribution_target") {
		b := p.Bool("contribution_target")
		patch.ContributionTarget = &b
	}

	s.mutated(w, r, http.StatusOK, func() (*services.Snapshot, error) {
		return s.payslips.UpdateLine(r.Context(), r.PathValue("id"), idx, patch)
	})
}

func (s *Server) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	idx, err := ParseLineIndex(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	s.mutated(w, r, http.StatusOK, func() (*services.Snapshot, error) {
		return s.payslips.RemoveLine(r.Context(), r.PathValue("id"), idx)
	})
}

func (s *Server) handleSetContribution(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	var patch services.ContributionPatch
	if p.Has("mode") {
		m := core.ParseContributionMode(p.Get("mode"))
		patch.Mode = &m
	}
	patch.RatePercent = p.Optional("rate")

	s.mutated(w, r, http.StatusOK, func() (*services.Snapshot, error) {
		return s.payslips.SetContribution(r.Context(), r.PathValue("id"), patch)
	})
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	s.mutated(w, r, http.StatusOK, func() (*services.Snapshot, error) {
		return s.payslips.Recalculate(r.Context(), r.PathValue("id"))
	})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.payslips.Totals(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(totals).Write(w)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		func(buf *bytes.Buffer, snap *services.Snapshot) error {
			return export.XLSXWriter{}.Write(buf, snap.Payslip, snap.Totals)
		})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, "csv", "text/csv; charset=utf-8",
		func(buf *bytes.Buffer, snap *services.Snapshot) error {
			cw := export.CSVWriter{IncludeHeader: true}
			return cw.Write(buf, snap.Payslip, snap.Totals)
		})
}

// download renders the payslip into memory first so a failed export never
// sends a truncated file with a 200 status.
func (s *Server) download(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(*bytes.Buffer, *services.Snapshot) error) {
	snap, err := s.payslips.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, snap); err != nil {
		s.fail(w, r, log.OpRender, fmt.Errorf("export %s: %w", ext, err))
		return
	}
	atomic.AddInt64(&s.appMetrics.exports, 1)

	filename := fmt.Sprintf("boleta-%s-%s.%s", snap.Payslip.Period.String(), snap.Payslip.ID, ext)
	NewResponse().
		Header("Content-Type", contentType).
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename)).
		Body(buf.Bytes()).
		Write(w)
}

// mutated runs a service mutation and answers with the recomputed payslip.
func (s *Server) mutated(w http.ResponseWriter, r *http.Request, status int, run func() (*services.Snapshot, error)) {
	snap, err := run()
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.recalculated(r, log.OpUpdate, snap)
	NewResponse().
		Status(status).
		TriggerPayslipRecalculated(snap.Payslip.ID, snap.Payslip.Version).
		JSON(newPayslipView(snap)).
		Write(w)
}

func (s *Server) recalculated(r *http.Request, op string, snap *services.Snapshot) {
	atomic.AddInt64(&s.appMetrics.recalculations, 1)
	p := snap.Payslip
	s.structured.LogPayslipRecalculated(r.Context(), op, p.ID, p.Employee, p.Period.String(),
		p.Version, string(p.Rule.Mode.Normalize()), snap.Totals.NetPayable)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logFailure(r, op, err)
	}
	ErrorResponse(status, errorMessage(status, err)).Write(w)
}

func (s *Server) logFailure(r *http.Request, op string, err error) {
	fields := log.NewFields()
	fields[log.FieldPayslipID] = r.PathValue("id")
	fields[log.FieldErrorType] = log.ErrorTypeInternal
	if idx := r.PathValue("index"); idx != "" {
		fields[log.FieldLineIndex] = idx
	}
	s.structured.LogError(r.Context(), "Payslip request failed", err, log.ComponentPayslip, op, fields)
}
