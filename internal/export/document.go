// Package export converts payslips to and from files: YAML documents for
// editing and seeding, CSV and XLSX for printing and hand-off.
package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"boleta/internal/core"
)

// Field is a form field value. Any YAML scalar (1, 1.50, "abc") is kept as
// its literal text so the engine applies its own coercion rules.
type Field string

// UnmarshalYAML accepts any scalar node.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar field value", node.Line)
	}
	if node.Tag == "!!null" {
		*f = ""
		return nil
	}
	*f = Field(node.Value)
	return nil
}

// Document is the YAML representation of a payslip.
type Document struct {
	ID           string                `yaml:"id,omitempty"`
	Version      int64                 `yaml:"version,omitempty"`
	Employee     string                `yaml:"employee"`
	Period       string                `yaml:"period"`
	Contribution ContributionDocument  `yaml:"contribution"`
	Lines        []LineDocument        `yaml:"lines"`
	Totals       *core.FormattedTotals `yaml:"totals,omitempty"`
}

type ContributionDocument struct {
	Mode string `yaml:"mode"`
	Rate Field  `yaml:"rate,omitempty"`
}

type LineDocument struct {
	Code               string `yaml:"code,omitempty"`
	Description        string `yaml:"description"`
	Category           string `yaml:"category"`
	Unit               string `yaml:"unit,omitempty"`
	Quantity           Field  `yaml:"quantity"`
	UnitAmount         Field  `yaml:"unit_amount"`
	ContributionTarget bool   `yaml:"contribution_target,omitempty"`
}

// FromPayslip builds a document; totals may be nil.
func FromPayslip(p *core.Payslip, totals *core.FormattedTotals) Document {
	doc := Document{
		ID:       p.ID,
		Version:  p.Version,
		Employee: p.Employee,
		Period:   p.Period.String(),
		Contribution: ContributionDocument{
			Mode: string(p.Rule.Mode.Normalize()),
			Rate: Field(p.Rule.RatePercent),
		},
		Lines:  make([]LineDocument, 0, len(p.Lines)),
		Totals: totals,
	}
	for _, li := range p.Lines {
		doc.Lines = append(doc.Lines, LineDocument{
			Code:               li.Code,
			Description:        li.Description,
			Category:           string(li.Category.Normalize()),
			Unit:               li.Unit,
			Quantity:           Field(li.Quantity),
			UnitAmount:         Field(li.UnitAmount),
			ContributionTarget: li.ContributionTarget,
		})
	}
	return doc
}

// Payslip converts the document into the domain model. Totals in the
// document are ignored; they are always recomputed.
func (d Document) Payslip() (*core.Payslip, error) {
	period, err := core.ParsePeriod(d.Period)
	if err != nil {
		return nil, err
	}
	p := &core.Payslip{
		ID:       strings.TrimSpace(d.ID),
		Version:  d.Version,
		Employee: strings.TrimSpace(d.Employee),
		Period:   period,
		Rule: core.ContributionRule{
			Mode:        core.ParseContributionMode(d.Contribution.Mode),
			RatePercent: string(d.Contribution.Rate),
		},
		Lines: make([]core.LineItem, 0, len(d.Lines)),
	}
	for _, l := range d.Lines {
		p.Lines = append(p.Lines, core.LineItem{
			Code:               l.Code,
			Description:        l.Description,
			Category:           core.ParseCategory(l.Category),
			Unit:               l.Unit,
			Quantity:           string(l.Quantity),
			UnitAmount:         string(l.UnitAmount),
			ContributionTarget: l.ContributionTarget,
		})
	}
	return p, nil
}

// ReadDocument decodes a single YAML document, rejecting unknown keys.
func ReadDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode payslip document: %w", err)
	}
	return doc, nil
}

// WriteDocument encodes doc as YAML with two-space indentation.
func WriteDocument(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode payslip document: %w", err)
	}
	return enc.Close()
}

// ReadFile loads a payslip document from path. Documents without an id get
// one derived from the file name.
func ReadFile(path string) (*core.Payslip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := ReadDocument(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p, err := doc.Payslip()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.ID == "" {
		p.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// WriteFile writes the payslip document to path, replacing it atomically.
func WriteFile(path string, p *core.Payslip, totals *core.FormattedTotals) error {
	var buf bytes.Buffer
	if err := WriteDocument(&buf, FromPayslip(p, totals)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".boleta-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
