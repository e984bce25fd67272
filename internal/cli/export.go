package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/report"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format  string
		outPath string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export experiment definitions, assignments and analysis",
		Long: `Export a point-in-time snapshot of one experiment, or all of them, as
JSON, CSV (one row per assignment) or an XLSX workbook.

Examples:
  strike-ab export checkout-cta --format csv > checkout-cta.csv
  strike-ab export checkout-cta --format json > checkout-cta.json
  strike-ab export --all --format xlsx --out experiments.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give an experiment id or --all")
			}
			if format != report.FormatCSV && format != report.FormatJSON && format != report.FormatXLSX {
				return fmt.Errorf("invalid format: must be 'csv', 'json' or 'xlsx'")
			}
			if format == report.FormatXLSX && outPath == "" {
				return fmt.Errorf("xlsx export needs --out")
			}

			return withEngine(cmd, opts, func(e *engine.Engine) error {
				ctx := cmd.Context()

				var snapshots []*report.Snapshot
				if all {
					s, err := e.ExportAll(ctx)
					if err != nil {
						return fmt.Errorf("failed to export: %w", err)
					}
					snapshots = s
				} else {
					snap, err := e.ExportSnapshot(ctx, args[0])
					if err != nil {
						return notFound(args[0], err)
					}
					snapshots = []*report.Snapshot{snap}
				}

				var w io.Writer = cmd.OutOrStdout()
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return fmt.Errorf("failed to create output file: %w", err)
					}
					defer f.Close()
					w = f
				}

				if err := report.Write(w, format, snapshots); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				if outPath != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d experiment(s) to %s\n", len(snapshots), outPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv, json or xlsx)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&all, "all", false, "export every experiment")

	return cmd
}
