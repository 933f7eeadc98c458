// Package cli provides the command-line interface for capsule.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase"
)

// Command group IDs.
const (
	groupSetup   = "setup"
	groupTask    = "task"
	groupComment = "comment"
	groupServer  = "server"
)

// Global flags, also settable as CAPSULE_DATA_DIR and CAPSULE_MIRROR_LOGS.
const (
	flagDataDir    = "data-dir"
	flagMirrorLogs = "mirror-logs"
	envPrefix      = "CAPSULE"
)

// newViper returns a viper instance reading CAPSULE_* environment variables.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// globalFlags holds the flags needed before the container exists.
type globalFlags struct {
	DataDir    string
	MirrorLogs bool
}

// parseGlobalFlags extracts the global flags from args, ignoring everything
// else. Command flags are validated later by cobra.
func parseGlobalFlags(args []string) (globalFlags, error) {
	fs := pflag.NewFlagSet("capsule", pflag.ContinueOnError)
	fs.ParseErrorsAllowlist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	addGlobalFlags(fs)
	_ = fs.Parse(args)

	v := newViper()
	if err := v.BindPFlags(fs); err != nil {
		return globalFlags{}, fmt.Errorf("bind flags: %w", err)
	}
	out := globalFlags{
		DataDir:    v.GetString(flagDataDir),
		MirrorLogs: v.GetBool(flagMirrorLogs),
	}
	if out.DataDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return globalFlags{}, fmt.Errorf("get current directory: %w", err)
		}
		out.DataDir = filepath.Join(cwd, domain.DataDirName)
	}
	abs, err := filepath.Abs(out.DataDir)
	if err != nil {
		return globalFlags{}, fmt.Errorf("resolve data directory: %w", err)
	}
	out.DataDir = abs
	return out, nil
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String(flagDataDir, "", "Data directory (default ./"+domain.DataDirName+", env CAPSULE_DATA_DIR)")
	fs.Bool(flagMirrorLogs, false, "Also print operational log entries to stderr (env CAPSULE_MIRROR_LOGS)")
}

// Run builds the container for the data directory named in args and executes
// the command line.
func Run(ctx context.Context, args []string, version string, stdout, stderr io.Writer) error {
	flags, err := parseGlobalFlags(args)
	if err != nil {
		return err
	}
	c, err := app.New(ctx, flags.DataDir, app.Options{
		Stderr:     stderr,
		MirrorLogs: flags.MirrorLogs,
	})
	if err != nil {
		// Help and version work without a usable configuration.
		if canRunWithoutContainer(args) {
			c = nil
		} else {
			return fmt.Errorf("initialize: %w", err)
		}
	}
	if c != nil {
		defer func() { _ = c.Close() }()
	}

	root := NewRootCommand(c, version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func canRunWithoutContainer(args []string) bool {
	if len(args) == 0 {
		return true
	}
	if args[0] == "help" {
		return true
	}
	for _, arg := range args {
		if arg == "--version" || arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// NewRootCommand creates the root command for capsule.
// It receives the container for dependency injection and version for display.
func NewRootCommand(c *app.Container, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "capsule",
		Short: "Task dependency and completion engine",
		Long: `capsule manages the tasks of project capsules: one-level subtasks,
blocker dependencies that can never form a cycle, a completion gate that
refuses to complete a task while subtasks or blockers are open, threaded
comments and a field-level audit history.

Run 'capsule serve' to expose the same operations over HTTP.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c == nil && cmd.Name() != "help" {
				return errors.New("capsule is not configured; check the config file")
			}
			return nil
		},
	}
	addGlobalFlags(root.PersistentFlags())

	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
		&cobra.Group{ID: groupTask, Title: "Task Management:"},
		&cobra.Group{ID: groupComment, Title: "Comments and History:"},
		&cobra.Group{ID: groupServer, Title: "Server:"},
	)

	add := func(group string, cmds ...*cobra.Command) {
		for _, cmd := range cmds {
			cmd.GroupID = group
			root.AddCommand(cmd)
		}
	}
	add(groupSetup, newInitCommand(c), newConfigCommand(c))
	add(groupTask,
		newNewCommand(c),
		newListCommand(c),
		newShowCommand(c),
		newEditCommand(c),
		newRmCommand(c),
		newCompleteCommand(c),
		newCheckCommand(c),
	)
	add(groupComment,
		newCommentCommand(c),
		newCommentsCommand(c),
		newHistoryCommand(c),
		newAttachCommand(c),
	)
	add(groupServer, newServeCommand(c))

	return root
}

// parseTaskID parses a task reference such as "12" or "#12".
func parseTaskID(arg string) (int, error) {
	id, ok := domain.ParseTaskRef(arg)
	if !ok {
		return 0, domain.NewValidationError("id", fmt.Sprintf("invalid task id %q", arg))
	}
	return id, nil
}

// actor is the user recorded in history for CLI changes.
func actor() string {
	if u := os.Getenv("CAPSULE_USER"); u != "" {
		return u
	}
	return os.Getenv("USER")
}

// withRetry runs a mutation, re-running it on concurrent modification.
func withRetry(cmd *cobra.Command, c *app.Container, operation string, fn func() error) error {
	attempts := domain.DefaultRetryAttempts
	if c.AppConfig != nil && c.AppConfig.Server.RetryAttempts > 0 {
		attempts = c.AppConfig.Server.RetryAttempts
	}
	err := usecase.RetryOnConflict(cmd.Context(), attempts, fn, func(attempt int) {
		c.Metrics.ObserveRetry()
		c.Logger.Debug("retrying after concurrent modification", "operation", operation, "attempt", attempt)
	})
	c.Metrics.ObserveOperation(operation, err)
	return err
}
