package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"boleta/internal/core"
	"boleta/internal/export"
)

func newNewCmd() *cobra.Command {
	var (
		employee string
		period   string
		mode     string
		rate     string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Write a payslip document seeded with the default rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			pr, err := parsePeriodFlag(period)
			if err != nil {
				return err
			}
			p := &core.Payslip{
				ID:       uuid.NewString(),
				Employee: employee,
				Period:   pr,
				Lines:    core.DefaultLines(),
				Rule: core.ContributionRule{
					Mode:        core.ParseContributionMode(mode),
					RatePercent: rate,
				},
			}
			if err := p.Validate(); err != nil {
				return err
			}
			totals := engineFromEnv().Compute(p).Formatted
			if out == "" {
				return export.WriteDocument(cmd.OutOrStdout(), export.FromPayslip(p, &totals))
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%s already exists", out)
			}
			return export.WriteFile(out, p, &totals)
		},
	}
	cmd.Flags().StringVar(&employee, "employee", "", "Employee name")
	cmd.Flags().StringVar(&period, "period", "", "Payroll period YYYY-MM (default current month)")
	cmd.Flags().StringVar(&mode, "mode", string(core.ModeManual), "Contribution mode: manual or auto")
	cmd.Flags().StringVar(&rate, "rate", "9", "Contribution rate percentage")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func parsePeriodFlag(s string) (core.Period, error) {
	if s == "" {
		now := time.Now()
		return core.Period{Year: now.Year(), Month: int(now.Month())}, nil
	}
	return core.ParsePeriod(s)
}
