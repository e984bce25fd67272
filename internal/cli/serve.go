package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/w3bsuki/strike-ab/internal/events"
	"github.com/w3bsuki/strike-ab/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the strike-ab HTTP server.

The server provides:
  - Variant assignment and conversion endpoints under /api
  - Analysis, export and lifecycle endpoints under /admin (token protected)
  - Prometheus metrics at /metrics
  - Health check at /health

Example:
  strike-ab serve --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			rt, err := opts.open(cmd, events.NewMetricsSink(reg))
			if err != nil {
				return err
			}
			defer rt.engine.Close()

			if cmd.Flags().Changed("host") {
				rt.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				rt.cfg.Server.Port = port
			}

			srv := server.New(rt.engine, rt.cfg.Addr(), rt.cfg.TokenFilePath(),
				server.WithLogger(rt.logger),
				server.WithGatherer(reg),
			)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintf(out, "strike-ab running on http://localhost:%d\n", rt.cfg.Server.Port)
			fmt.Fprintf(out, "Admin: http://localhost:%d/admin/experiments?token=%s\n", rt.cfg.Server.Port, srv.Token())
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Press Ctrl+C to stop")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "interface to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")

	return cmd
}
