package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/httpapi"
)

// Serve flags, also settable as CAPSULE_ADDR, CAPSULE_RETRY_ATTEMPTS and
// CAPSULE_METRICS.
const (
	flagAddr          = "addr"
	flagRetryAttempts = "retry-attempts"
	flagMetrics       = "metrics"
)

// newServeCommand creates the serve command.
func newServeCommand(c *app.Container) *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API over HTTP",
		Long: `Serve the task operations as a JSON API under /v1, with /health and,
unless disabled, Prometheus metrics on /metrics.

Flags override environment variables (CAPSULE_ADDR, CAPSULE_RETRY_ATTEMPTS,
CAPSULE_METRICS), which override the [server] section of config.toml.
The caller identity is read from the X-User-ID and X-Org-ID headers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			server := &c.AppConfig.Server
			v.SetDefault(flagAddr, server.Addr)
			v.SetDefault(flagRetryAttempts, server.RetryAttempts)
			v.SetDefault(flagMetrics, server.Metrics)
			server.Addr = v.GetString(flagAddr)
			server.RetryAttempts = v.GetInt(flagRetryAttempts)
			server.Metrics = v.GetBool(flagMetrics)
			if err := c.AppConfig.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return httpapi.NewServer(c).Run(ctx, server.Addr)
		},
	}

	cmd.Flags().String(flagAddr, "", "Listen address (default from [server] addr)")
	cmd.Flags().Int(flagRetryAttempts, 0, "Attempts per request on concurrent modification")
	cmd.Flags().Bool(flagMetrics, true, "Expose Prometheus metrics on /metrics")
	return cmd
}
