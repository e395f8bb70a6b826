package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"boleta/internal/core"
	"boleta/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export a payslip document as XLSX or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := export.ReadFile(args[0])
			if err != nil {
				return err
			}
			totals := engineFromEnv().Compute(p).Formatted

			var write func(io.Writer, *core.Payslip, core.FormattedTotals) error
			switch strings.ToLower(format) {
			case "xlsx":
				write = export.XLSXWriter{}.Write
			case "csv":
				cw := &export.CSVWriter{IncludeHeader: true}
				write = cw.Write
			default:
				return fmt.Errorf("unknown format %q: must be xlsx or csv", format)
			}

			var buf bytes.Buffer
			if err := write(&buf, p, totals); err != nil {
				return err
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "." + strings.ToLower(format)
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "xlsx", "Output format: xlsx or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, - for stdout (default next to the input)")
	return cmd
}
