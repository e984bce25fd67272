package cli

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/store"
)

type statusAction int

const (
	statusActivate statusAction = iota
	statusPause
	statusResume
	statusComplete
)

// newStatusCmd builds one lifecycle command: activate, pause, resume or
// complete.
func newStatusCmd(opts *rootOptions, action statusAction) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Args: cobra.ExactArgs(1),
	}

	switch action {
	case statusActivate:
		cmd.Use = "activate <id>"
		cmd.Short = "Start assigning visitors to a draft experiment"
	case statusPause:
		cmd.Use = "pause <id>"
		cmd.Short = "Stop new assignments, keeping existing ones"
	case statusResume:
		cmd.Use = "resume <id>"
		cmd.Short = "Resume a paused experiment"
	case statusComplete:
		cmd.Use = "complete <id>"
		cmd.Short = "End an experiment for good"
		cmd.Long = `Complete an experiment. No new visitors are assigned afterwards and the
experiment cannot be restarted. Results stay available.

Example:
  strike-ab complete checkout-cta --yes`
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id := args[0]

		if action == statusComplete && !yes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Complete experiment '%s'? This cannot be undone", id),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		return withEngine(cmd, opts, func(e *engine.Engine) error {
			ctx := cmd.Context()
			c := e.Catalog()

			var (
				exp *store.Experiment
				err error
			)
			switch action {
			case statusActivate:
				exp, err = c.Activate(ctx, id)
			case statusPause:
				exp, err = c.Pause(ctx, id)
			case statusResume:
				exp, err = c.Resume(ctx, id)
			case statusComplete:
				exp, err = c.Complete(ctx, id)
			}
			if err != nil {
				return notFound(id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is now %s.\n", exp.ID, exp.Status)
			if exp.Status == store.StatusCompleted {
				fmt.Fprintf(cmd.OutOrStdout(), "See the final numbers with: strike-ab results %s\n", exp.ID)
			}
			return nil
		})
	}

	return cmd
}
