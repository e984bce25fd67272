package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show the admin URL with access token",
		Long: `Show the admin URL with the token of the running server.

Use this when you've scrolled past the startup message or need to
call the admin API.

Example:
  strike-ab token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(cfg.TokenFilePath())
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no server running. Start with: strike-ab serve")
				}
				return fmt.Errorf("failed to read token file: %w", err)
			}

			token := strings.TrimSpace(string(data))
			if token == "" {
				return fmt.Errorf("token file is empty. Restart the server with: strike-ab serve")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Admin: http://localhost:%d/admin/experiments?token=%s\n", cfg.Server.Port, token)
			fmt.Fprintf(out, "API:   curl -H 'Authorization: Bearer %s' http://localhost:%d/admin/experiments\n", token, cfg.Server.Port)
			return nil
		},
	}
}
