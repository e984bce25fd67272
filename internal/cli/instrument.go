package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/w3bsuki/strike-ab/internal/bucketing"
	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/ledger"
)

type identityFlags struct {
	userID    string
	sessionID string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", "", "user id (takes precedence for bucketing)")
	cmd.Flags().StringVar(&f.sessionID, "session", "", "session id")
}

func (f *identityFlags) identity() (ledger.Identity, error) {
	id := ledger.Identity{UserID: f.userID, SessionID: f.sessionID}
	if id.Key() == "" {
		return id, fmt.Errorf("need --user or --session")
	}
	return id, nil
}

func newAssignCmd(opts *rootOptions) *cobra.Command {
	var (
		who      identityFlags
		device   string
		country  string
		segments []string
	)

	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Get (or make) the variant assignment for a visitor",
		Long: `Get the variant a visitor sees, assigning one on first sight. The same
visitor always gets the same variant.

Examples:
  strike-ab assign checkout-cta --user user-42
  strike-ab assign checkout-cta --session s-9 --device mobile --country US`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := who.identity()
			if err != nil {
				return err
			}
			attrs := bucketing.Attributes{Device: device, Country: country, Segments: segments}

			return withEngine(cmd, opts, func(e *engine.Engine) error {
				out := cmd.OutOrStdout()

				d := e.GetVariant(cmd.Context(), args[0], id, attrs)
				if d == nil {
					fmt.Fprintln(out, "No variant: experiment unknown, not running, or visitor not eligible.")
					return nil
				}

				state := "existing"
				if d.New {
					state = "new"
				}
				fmt.Fprintf(out, "VARIANT: %s (%s)\n", d.VariantID, d.VariantName)
				fmt.Fprintf(out, "ASSIGNED: %s (%s)\n", d.AssignedAt.Format("2006-01-02 15:04:05"), state)
				if len(d.Config) > 0 {
					cfg, err := json.MarshalIndent(d.Config, "", "  ")
					if err != nil {
						return fmt.Errorf("failed to encode config: %w", err)
					}
					fmt.Fprintf(out, "CONFIG: %s\n", cfg)
				}
				return nil
			})
		},
	}

	who.register(cmd)
	cmd.Flags().StringVar(&device, "device", "", "device type, e.g. mobile")
	cmd.Flags().StringVar(&country, "country", "", "country code, e.g. US")
	cmd.Flags().StringSliceVar(&segments, "segment", nil, "user segment (repeatable)")

	return cmd
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var (
		who   identityFlags
		value string
		meta  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "convert <id>",
		Short: "Record a conversion for an assigned visitor",
		Long: `Record a conversion for a visitor who already has an assignment. Visitors
without one are ignored. Recording again replaces the value.

Examples:
  strike-ab convert checkout-cta --user user-42
  strike-ab convert checkout-cta --user user-42 --value 49.90 --meta plan=pro`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := who.identity()
			if err != nil {
				return err
			}

			var c ledger.Conversion
			if value != "" {
				v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
				if err != nil {
					return fmt.Errorf("invalid --value %q: %w", value, err)
				}
				c.Value = &v
			}
			if len(meta) > 0 {
				c.Metadata = make(map[string]any, len(meta))
				for k, v := range meta {
					c.Metadata[k] = v
				}
			}

			return withEngine(cmd, opts, func(e *engine.Engine) error {
				if !e.TrackConversion(cmd.Context(), args[0], id, c) {
					fmt.Fprintf(cmd.OutOrStdout(), "No assignment for %s in '%s'; nothing recorded.\n", id.Key(), args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded conversion for %s in '%s'.\n", id.Key(), args[0])
				return nil
			})
		},
	}

	who.register(cmd)
	cmd.Flags().StringVar(&value, "value", "", "conversion value, e.g. order total")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value (repeatable)")

	return cmd
}
