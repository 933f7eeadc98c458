package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/infra/crypto"
)

// newConfigCommand creates the config command.
func newConfigCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		// No RunE: shows subcommand list when called without arguments
	}
	cmd.AddCommand(newConfigShowCommand(c))
	cmd.AddCommand(newConfigGenKeyCommand())
	return cmd
}

// newConfigGenKeyCommand creates the config gen-key subcommand.
func newConfigGenKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a key for [store] encryption_key",
		Long: `Print a random AES-256 key in the format expected by [store] encryption_key.
With a key set, the git store seals every blob it writes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

// newConfigShowCommand creates the config show subcommand.
func newConfigShowCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration",
		Long: `Display the effective configuration after merging defaults, the global
config file and the data directory config file. The store DSN is masked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ShowConfigUseCase().Execute(cmd.Context())
			if err != nil {
				return err
			}
			for _, warning := range out.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", warning)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), out.TOML)
			return nil
		},
	}
}
