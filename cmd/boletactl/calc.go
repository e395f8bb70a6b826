package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"boleta/internal/core"
	"boleta/internal/export"
	"boleta/internal/services"
)

func newCalcCmd() *cobra.Command {
	var (
		asJSON bool
		write  bool
	)
	cmd := &cobra.Command{
		Use:   "calc FILE...",
		Short: "Run a recomputation pass over payslip documents",
		Long: `calc applies the contribution rule and prints the totals of each document.
With --write the recomputed rows and totals are saved back into the file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := engineFromEnv()
			for _, path := range args {
				p, err := export.ReadFile(path)
				if err != nil {
					return err
				}
				res := engine.Compute(p)
				if write {
					if err := export.WriteFile(path, p, &res.Formatted); err != nil {
						return err
					}
				}
				if err := printResult(cmd.OutOrStdout(), path, p, res, asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print totals as JSON")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write recomputed rows and totals back to the file")
	return cmd
}

type calcOutput struct {
	File       string               `json:"file"`
	ID         string               `json:"id"`
	Employee   string               `json:"employee"`
	Period     string               `json:"period"`
	Totals     core.FormattedTotals `json:"totals"`
	Adjusted   bool                 `json:"adjusted"`
	UnitAmount string               `json:"contribution_unit_amount,omitempty"`
}

func printResult(w io.Writer, path string, p *core.Payslip, res services.Result, asJSON bool) error {
	if asJSON {
		out := calcOutput{
			File:     path,
			ID:       p.ID,
			Employee: p.Employee,
			Period:   p.Period.String(),
			Totals:   res.Formatted,
			Adjusted: res.Adjustment != nil,
		}
		if res.Adjustment != nil {
			out.UnitAmount = res.Adjustment.UnitAmount
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "%s  %s  %s\n", path, p.Employee, p.Period)
	if adj := res.Adjustment; adj != nil {
		fmt.Fprintf(w, "  contribution row %d set to %s (base %s, rate %s)\n",
			adj.TargetIndex+1, adj.UnitAmount, core.FormatAmount(adj.Base), adj.Rate.String())
	}
	fmt.Fprintf(w, "  income                 %12s\n", res.Formatted.Income)
	fmt.Fprintf(w, "  deductions             %12s\n", res.Formatted.Deductions)
	fmt.Fprintf(w, "  employer contributions %12s\n", res.Formatted.EmployerContributions)
	fmt.Fprintf(w, "  net payable            %12s\n", res.Formatted.NetPayable)
	return nil
}
