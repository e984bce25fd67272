package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/store"
)

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		file     string
		activate bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an experiment from a definition file",
		Long: `Create an experiment from a YAML (or JSON) definition. New experiments
start as drafts; pass --activate to start assigning right away.

Example definition:

  id: checkout-cta
  name: Checkout CTA copy
  variants:
    - id: control
      name: Buy now
      weight: 50
    - id: urgent
      name: Buy now - 2 left
      weight: 50
      config:
        label: "Only 2 left!"
  targeting:
    trafficPercentage: 100
    deviceTypes: [mobile, desktop]
  metrics:
    primary: purchase
  minimumSampleSize: 1000
  statisticalSignificance: 0.95

Examples:
  strike-ab create -f checkout-cta.yaml
  strike-ab create -f checkout-cta.yaml --activate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read definition: %w", err)
			}

			var def store.Experiment
			if err := yaml.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("failed to parse definition: %w", err)
			}

			return withEngine(cmd, opts, func(e *engine.Engine) error {
				ctx := cmd.Context()

				id, err := e.Catalog().Create(ctx, &def)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' with %d variants:\n", id, len(def.Variants))
				for _, v := range def.Variants {
					fmt.Fprintf(out, "  %s: %s (weight %d)\n", v.ID, v.Name, v.Weight)
				}

				if activate {
					if _, err := e.Catalog().Activate(ctx, id); err != nil {
						return fmt.Errorf("failed to activate experiment: %w", err)
					}
					fmt.Fprintln(out, "Experiment is running.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "definition file (required)")
	cmd.Flags().BoolVar(&activate, "activate", false, "start the experiment immediately")
	cmd.MarkFlagRequired("file")

	return cmd
}
