package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase"
)

// Output formats of the history command.
const (
	formatText = "text"
	formatYAML = "yaml"
	formatJSON = "json"
)

// newHistoryCommand creates the history command.
func newHistoryCommand(c *app.Container) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit history of a task",
		Long: `Show every history entry of a task, oldest first. Deleted tasks keep
their history.

The text format resolves user and tag ids to the names configured in
[[users]] and [[tags]].`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			out, err := c.GetHistoryUseCase().Execute(cmd.Context(), usecase.GetHistoryInput{TaskID: id})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch output {
			case formatYAML:
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(out.Entries); err != nil {
					return fmt.Errorf("encode history: %w", err)
				}
				return enc.Close()
			case formatJSON:
				return writeJSON(w, out.Entries)
			case formatText:
				described, err := c.DescribeChangeUseCase().Execute(cmd.Context(), out.Entries)
				if err != nil {
					return err
				}
				if out.Deleted {
					_, _ = fmt.Fprintf(w, "Task #%d has been deleted.\n", id)
				}
				printHistory(w, described)
				return nil
			default:
				return domain.NewValidationError("output", fmt.Sprintf("unknown format %q (want text, yaml or json)", output))
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "Output format: text, yaml or json")
	return cmd
}

func printHistory(w io.Writer, entries []usecase.DescribedEntry) {
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s  %-20s %s\n",
			e.Entry.Timestamp.Format("2006-01-02 15:04:05"),
			e.Entry.ChangeType,
			e.Actor,
		)
		for _, line := range e.Lines {
			_, _ = fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

// newAttachCommand creates the attach command.
func newAttachCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "Record a file attachment in the task history",
		Long: `Record that a file was attached to a task. Only the file name is kept;
the file itself is stored elsewhere.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			var out *usecase.AttachFileOutput
			err = withRetry(cmd, c, "attach_file", func() error {
				var err error
				out, err = c.AttachFileUseCase().Execute(cmd.Context(), usecase.AttachFileInput{
					ActorID:  actor(),
					FileName: args[1],
					TaskID:   id,
				})
				return err
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Attached %v to task #%d\n",
				out.History.ChangeDescription[domain.FieldFile].New, id)
			return nil
		},
	}
}
