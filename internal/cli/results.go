package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/stats"
)

func newResultsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "results <id>",
		Short: "Show the statistical analysis of an experiment",
		Long:  `Show conversion rates, uplift and significance of every variant against the control.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			return withEngine(cmd, opts, func(e *engine.Engine) error {
				ctx := cmd.Context()

				exp, err := e.Catalog().Get(ctx, id)
				if err != nil {
					return notFound(id, err)
				}
				result, err := e.GetAnalysis(ctx, id)
				if err != nil {
					return notFound(id, err)
				}

				out := cmd.OutOrStdout()

				// Print header
				fmt.Fprintf(out, "EXPERIMENT: %s (%s)\n", exp.ID, exp.Name)
				fmt.Fprintf(out, "STATUS: %s\n", exp.Status)
				if exp.Metrics.Primary != "" {
					fmt.Fprintf(out, "PRIMARY METRIC: %s\n", exp.Metrics.Primary)
				}
				fmt.Fprintf(out, "VISITORS: %s (minimum %s)\n", formatNumber(result.TotalVisitors), formatNumber(result.MinimumSampleSize))
				fmt.Fprintf(out, "ANALYSIS: %s\n", strings.ToUpper(string(result.Status)))
				fmt.Fprintln(out)

				fmt.Fprintln(out, "VARIANT           VISITORS  CONV    RATE     UPLIFT   Z      95% CI")
				fmt.Fprintln(out, strings.Repeat("─", 78))

				for _, v := range result.Variants {
					indicator := ""
					switch {
					case v.IsControl:
						indicator = " (control)"
					case result.Winner != nil && *result.Winner == v.VariantID:
						indicator = " ← WINNER"
					}

					ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
					if v.Visitors == 0 {
						ciStr = "N/A"
					}
					uplift, z := "-", "-"
					if !v.IsControl && v.Visitors > 0 && result.Status != stats.StatusInsufficientData {
						uplift = fmt.Sprintf("%+.1f%%", v.Uplift)
						z = fmt.Sprintf("%.2f", v.Significance)
					}

					// Truncate name if too long
					name := v.Name
					if len(name) > 16 {
						name = name[:13] + "..."
					}

					fmt.Fprintf(out, "%-16s  %-8d  %-6d  %-7s  %-7s  %-5s  %s%s\n",
						name,
						v.Visitors,
						v.Conversions,
						formatPercent(v.ConversionRate),
						uplift,
						z,
						ciStr,
						indicator,
					)
				}

				fmt.Fprintln(out)
				if result.Winner != nil && result.Confidence != nil {
					fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" beats control (z > %.2f)\n",
						*result.Confidence*100, *result.Winner, result.Threshold)
				}

				fmt.Fprintln(out, "Recommendations:")
				for _, rec := range result.Recommendations {
					fmt.Fprintf(out, "  - %s\n", rec)
				}

				return nil
			})
		},
	}
}
