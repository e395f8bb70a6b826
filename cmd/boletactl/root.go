package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"boleta/internal/cli"
	"boleta/internal/config"
	"boleta/internal/services"
)

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "boletactl",
		Short: "Recompute and export payslip documents",
		Long: `boletactl works on payslip YAML documents without a running server.

Examples:
  boletactl new --employee "Ana Pérez" --period 2025-03 --out ana.yaml
  boletactl calc ana.yaml --write
  boletactl export ana.yaml --format xlsx --out ana.xlsx`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.LoadEnvFile()
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newNewCmd(), newCalcCmd(), newExportCmd(), newSheetsAuthCmd(), newVersionCmd())
	return cmd
}

// engineFromEnv builds an engine honoring BOLETA_DEFAULT_RATE_PERCENT and
// BOLETA_BASE_CONCEPT.
func engineFromEnv() *services.Engine {
	return services.NewEngine(cli.RuleConfig(config.Load()))
}
