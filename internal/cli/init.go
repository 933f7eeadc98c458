package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/usecase"
)

// newInitCommand creates the init command.
func newInitCommand(c *app.Container) *cobra.Command {
	var noConfig bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the data directory",
		Long: `Initialize the capsule data directory.

This command creates the data directory (default ./.capsule) with:
- the task store selected by [store] type (json, git, badger or postgres)
- config.toml: a commented configuration file, unless one exists
- logs/: created on the first logged operation

Running init again is harmless.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.InitStoreUseCase().Execute(cmd.Context(), usecase.InitStoreInput{
				DataDir:     c.DataDir,
				WriteConfig: !noConfig,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out.StoreCreated {
				_, _ = fmt.Fprintf(w, "Initialized %s store in %s\n", c.AppConfig.Store.Type, c.DataDir)
			} else {
				_, _ = fmt.Fprintf(w, "Store already initialized in %s\n", c.DataDir)
			}
			if out.ConfigCreated {
				_, _ = fmt.Fprintf(w, "Wrote %s\n", out.ConfigPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noConfig, "no-config", false, "Do not write config.toml")
	return cmd
}
