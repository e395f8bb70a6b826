package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"boleta/internal/core"
	"boleta/internal/services"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// fieldText accepts a JSON string or number and keeps its literal text, so
// numeric fields reach the engine exactly as typed.
type fieldText string

func (f *fieldText) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = fieldText(s)
		return nil
	}
	*f = fieldText(b)
	return nil
}

type lineRequest struct {
	Code               string    `json:"code"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	Unit               string    `json:"unit"`
	Quantity           fieldText `json:"quantity"`
	UnitAmount         fieldText `json:"unit_amount"`
	ContributionTarget bool      `json:"contribution_target"`
}

func (l lineRequest) lineItem() core.LineItem {
	return core.LineItem{
		Code:               sanitizeInput(l.Code),
		Description:        sanitizeInput(l.Description),
		Category:           core.ParseCategory(l.Category),
		Unit:               sanitizeInput(l.Unit),
		Quantity:           sanitizeInput(string(l.Quantity)),
		UnitAmount:         sanitizeInput(string(l.UnitAmount)),
		ContributionTarget: l.ContributionTarget,
	}
}

// createLines is the optional "lines" array of a JSON create request.
type createLines struct {
	Lines []lineRequest `json:"lines"`
}

type lineView struct {
	Index              int    `json:"index"`
	Code               string `json:"code"`
	Description        string `json:"description"`
	Category           string `json:"category"`
	CategoryLabel      string `json:"category_label"`
	Unit               string `json:"unit"`
	Quantity           string `json:"quantity"`
	UnitAmount         string `json:"unit_amount"`
	Subtotal           string `json:"subtotal"`
	ContributionTarget bool   `json:"contribution_target"`
}

type contributionView struct {
	Mode string `json:"mode"`
	Rate string `json:"rate"`
}

type adjustmentView struct {
	TargetIndex int    `json:"target_index"`
	BaseIndex   int    `json:"base_index"`
	Base        string `json:"base"`
	Rate        string `json:"rate"`
	UnitAmount  string `json:"unit_amount"`
}

type payslipView struct {
	ID           string               `json:"id"`
	Employee     string               `json:"employee"`
	Period       string               `json:"period"`
	Version      int64                `json:"version"`
	Contribution contributionView     `json:"contribution"`
	Lines        []lineView           `json:"lines"`
	Totals       core.FormattedTotals `json:"totals"`
	Adjustment   *adjustmentView      `json:"adjustment,omitempty"`
}

type summaryView struct {
	ID       string               `json:"id"`
	Employee string               `json:"employee"`
	Period   string               `json:"period"`
	Version  int64                `json:"version"`
	Totals   core.FormattedTotals `json:"totals"`
}

func newPayslipView(snap *services.Snapshot) payslipView {
	p := snap.Payslip
	v := payslipView{
		ID:       p.ID,
		Employee: p.Employee,
		Period:   p.Period.String(),
		Version:  p.Version,
		Contribution: contributionView{
			Mode: string(p.Rule.Mode.Normalize()),
			Rate: p.Rule.RatePercent,
		},
		Lines:  make([]lineView, len(p.Lines)),
		Totals: snap.Totals,
	}
	for i, li := range p.Lines {
		v.Lines[i] = lineView{
			Index:              i,
			Code:               li.Code,
			Description:        li.Description,
			Category:           string(li.Category.Normalize()),
			CategoryLabel:      li.Category.Label(),
			Unit:               li.Unit,
			Quantity:           li.Quantity,
			UnitAmount:         li.UnitAmount,
			Subtotal:           core.FormatAmount(li.Subtotal()),
			ContributionTarget: li.ContributionTarget,
		}
	}
	if adj := snap.Adjustment; adj != nil {
		v.Adjustment = &adjustmentView{
			TargetIndex: adj.TargetIndex,
			BaseIndex:   adj.BaseIndex,
			Base:        core.FormatAmount(adj.Base),
			Rate:        adj.Rate.String(),
			UnitAmount:  adj.UnitAmount,
		}
	}
	return v
}

func newSummaryViews(in []core.PayslipSummary) []summaryView {
	out := make([]summaryView, len(in))
	for i, s := range in {
		out[i] = summaryView{
			ID:       s.ID,
			Employee: s.Employee,
			Period:   s.Period.String(),
			Version:  s.Version,
			Totals:   s.Totals,
		}
	}
	return out
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrPayslipNotFound), errors.Is(err, core.ErrLineOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmptyEmployee),
		errors.Is(err, core.ErrEmptyPayslipID),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidYear),
		errors.Is(err, core.ErrMultipleTargets),
		errors.Is(err, core.ErrDescriptionLimit),
		errors.Is(err, core.ErrEmployeeLimit):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal error details behind a generic message.
func errorMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
