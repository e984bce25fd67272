package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/store"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Long: `List experiments with their status and traffic so far.

Examples:
  strike-ab list
  strike-ab list --status running`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.Status(strings.ToLower(status))
			if filter != "" && !filter.Valid() {
				return fmt.Errorf("invalid status %q: must be draft, running, paused or completed", status)
			}

			return withEngine(cmd, opts, func(e *engine.Engine) error {
				ctx := cmd.Context()

				exps, err := e.Catalog().List(ctx)
				if err != nil {
					return fmt.Errorf("failed to list experiments: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(exps) == 0 {
					fmt.Fprintln(out, "No experiments yet.")
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Create one from a definition file:")
					fmt.Fprintln(out, "  strike-ab create -f experiment.yaml")
					return nil
				}

				// Print table
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIANTS\tVISITORS\tCONVERSIONS\tCREATED")

				for _, exp := range exps {
					if filter != "" && exp.Status != filter {
						continue
					}

					assignments, err := e.Ledger().Assignments(ctx, exp.ID)
					if err != nil {
						return fmt.Errorf("failed to get assignments for %s: %w", exp.ID, err)
					}
					conversions := 0
					for _, a := range assignments {
						if a.Converted {
							conversions++
						}
					}

					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
						exp.ID,
						exp.Name,
						strings.ToUpper(string(exp.Status)),
						len(exp.Variants),
						formatNumber(len(assignments)),
						formatNumber(conversions),
						exp.CreatedAt.Format("2006-01-02"),
					)
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show experiments in this status")

	return cmd
}
