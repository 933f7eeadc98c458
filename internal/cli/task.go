package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase"
)

// dateLayouts are the accepted formats of --start and --due.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseDate(field, s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.NewValidationError(field, fmt.Sprintf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s))
}

func parseStatusFlag(s string) (domain.Status, error) {
	st, err := domain.ParseStatus(s)
	if err != nil {
		return "", domain.NewValidationError("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

func parsePriorityFlag(s string) (domain.Priority, error) {
	p, err := domain.ParsePriority(s)
	if err != nil {
		return "", domain.NewValidationError("priority", fmt.Sprintf("unknown priority %q", s))
	}
	return p, nil
}

// newNewCommand creates the new command for creating tasks.
func newNewCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Title       string
		Description string
		Status      string
		Priority    string
		Start       string
		Due         string
		Blockers    []int
		Assignees   []string
		Tags        []string
		CapsuleID   int
		ParentID    int
		Progress    int
	}

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new task",
		Long: `Create a new task in a capsule.

The task is created with status 'TO_DO' unless --status is given. Creating a
task directly as COMPLETED goes through the completion gate.

Examples:
  # Create a top-level task
  capsule new --capsule 1 --title "Launch checklist"

  # Create a subtask under task #1
  capsule new --capsule 1 --parent 1 --title "Write press release"

  # Create a task blocked by #2 and #3
  capsule new --capsule 1 --title "Ship" --blocker 2 --blocker 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := usecase.NewTaskInput{
				Title:           opts.Title,
				Description:     opts.Description,
				CapsuleID:       opts.CapsuleID,
				BlockerIDs:      opts.Blockers,
				AssignedUserIDs: opts.Assignees,
				TagIDs:          opts.Tags,
				Progress:        opts.Progress,
				ActorID:         actor(),
			}
			if opts.ParentID > 0 {
				in.ParentID = &opts.ParentID
			}
			var err error
			if opts.Status != "" {
				if in.Status, err = parseStatusFlag(opts.Status); err != nil {
					return err
				}
			}
			if opts.Priority != "" {
				if in.Priority, err = parsePriorityFlag(opts.Priority); err != nil {
					return err
				}
			}
			if opts.Start != "" {
				t, err := parseDate("startDate", opts.Start)
				if err != nil {
					return err
				}
				in.StartDate = &t
			}
			if opts.Due != "" {
				t, err := parseDate("dueDate", opts.Due)
				if err != nil {
					return err
				}
				in.DueDate = &t
			}

			var out *usecase.NewTaskOutput
			err = withRetry(cmd, c, "new_task", func() error {
				var err error
				out, err = c.NewTaskUseCase().Execute(cmd.Context(), in)
				return err
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d\n", out.Task.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "Task title (required)")
	cmd.Flags().StringVar(&opts.Description, "body", "", "Task description")
	cmd.Flags().IntVar(&opts.CapsuleID, "capsule", 0, "Owning capsule ID (required)")
	cmd.Flags().IntVar(&opts.ParentID, "parent", 0, "Parent task ID (creates a subtask)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Initial status (default TO_DO)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "Priority: low, medium, high or critical")
	cmd.Flags().IntSliceVar(&opts.Blockers, "blocker", nil, "Blocking task ID (can specify multiple)")
	cmd.Flags().StringArrayVar(&opts.Assignees, "assign", nil, "Assigned user ID (can specify multiple)")
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", nil, "Tag ID (can specify multiple)")
	cmd.Flags().IntVar(&opts.Progress, "progress", 0, "Progress percentage (0-100)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "Planned start date")
	cmd.Flags().StringVar(&opts.Due, "due", "", "Due date")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("capsule")

	return cmd
}

// newListCommand creates the list command.
func newListCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Status    string
		CapsuleID int
		ParentID  int
		Roots     bool
		JSON      bool
	}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := usecase.ListTasksInput{
				Status:    opts.Status,
				CapsuleID: opts.CapsuleID,
				RootsOnly: opts.Roots,
			}
			if cmd.Flags().Changed("parent") {
				in.ParentID = &opts.ParentID
			}
			out, err := c.ListTasksUseCase().Execute(cmd.Context(), in)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), out.Tasks)
			}
			if len(out.Tasks) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			printTaskList(cmd.OutOrStdout(), out.Tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.CapsuleID, "capsule", 0, "Filter by capsule")
	cmd.Flags().IntVar(&opts.ParentID, "parent", 0, "Only subtasks of this task")
	cmd.Flags().BoolVar(&opts.Roots, "roots", false, "Only top-level tasks")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output JSON")
	return cmd
}

func printTaskList(w io.Writer, tasks []*domain.Task) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "ID\tCAPSULE\tPARENT\tSTATUS\tBLOCKERS\tTITLE")
	for _, task := range tasks {
		parentStr := "-"
		if task.ParentID != nil {
			parentStr = fmt.Sprintf("%d", *task.ParentID)
		}
		blockersStr := "-"
		if len(task.BlockerIDs) > 0 {
			refs := make([]string, 0, len(task.BlockerIDs))
			for _, id := range task.BlockerIDs {
				refs = append(refs, domain.TaskRef(id))
			}
			blockersStr = strings.Join(refs, ",")
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			task.ID,
			task.CapsuleID,
			parentStr,
			task.Status.Display(),
			blockersStr,
			task.Title,
		)
	}
}

// newShowCommand creates the show command.
func newShowCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			out, err := c.ShowTaskUseCase().Execute(cmd.Context(), usecase.ShowTaskInput{TaskID: id})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printTaskDetails(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printTaskDetails(w io.Writer, out *usecase.ShowTaskOutput) {
	task := out.Task

	_, _ = fmt.Fprintf(w, "# Task %d: %s\n\n", task.ID, task.Title)
	if task.Description != "" {
		_, _ = fmt.Fprintf(w, "%s\n\n", task.Description)
	}

	_, _ = fmt.Fprintf(w, "Capsule: %d\n", task.CapsuleID)
	_, _ = fmt.Fprintf(w, "Status: %s\n", task.Status.Display())
	if task.Priority != domain.PriorityNone {
		_, _ = fmt.Fprintf(w, "Priority: %s\n", task.Priority)
	}
	if out.Parent != nil {
		_, _ = fmt.Fprintf(w, "Parent: #%d %s\n", out.Parent.ID, out.Parent.Title)
	} else {
		_, _ = fmt.Fprintln(w, "Parent: none")
	}
	_, _ = fmt.Fprintf(w, "Progress: %d%%\n", task.Progress)
	if len(task.AssignedUserIDs) > 0 {
		_, _ = fmt.Fprintf(w, "Assignees: %s\n", strings.Join(task.AssignedUserIDs, ", "))
	}
	if len(task.TagIDs) > 0 {
		_, _ = fmt.Fprintf(w, "Tags: [%s]\n", strings.Join(task.TagIDs, ", "))
	}
	if task.StartDate != nil {
		_, _ = fmt.Fprintf(w, "Start: %s\n", task.StartDate.Format(time.RFC3339))
	}
	if task.DueDate != nil {
		_, _ = fmt.Fprintf(w, "Due: %s\n", task.DueDate.Format(time.RFC3339))
	}
	if task.CompletedDate != nil {
		_, _ = fmt.Fprintf(w, "Completed: %s\n", task.CompletedDate.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "Created: %s\n", task.Created.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Comments: %d\n", out.CommentCount)

	printTaskRefs(w, "Subtasks", out.Subtasks)
	printTaskRefs(w, "Blocked by", out.Blockers)
	printTaskRefs(w, "Blocking", out.Blocking)
}

func printTaskRefs(w io.Writer, heading string, tasks []*domain.Task) {
	if len(tasks) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n%s:\n", heading)
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "  #%d [%s] %s\n", t.ID, t.Status.Display(), t.Title)
	}
}

// newEditCommand creates the edit command.
func newEditCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Title          string
		Description    string
		Status         string
		Priority       string
		Start          string
		Due            string
		Blockers       []int
		AddBlockers    []int
		RemoveBlockers []int
		Assignees      []string
		Tags           []string
		ParentID       int
		Progress       int
		NoParent       bool
		ClearStart     bool
		ClearDue       bool
	}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task",
		Long: `Edit fields of an existing task. Only the given flags change.

Blocker changes are rejected when they would form a cycle. Setting the status
to COMPLETED goes through the completion gate.

Examples:
  capsule edit 3 --title "New title" --priority high
  capsule edit 3 --add-blocker 5 --rm-blocker 2
  capsule edit 4 --parent 1
  capsule edit 4 --no-parent`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			in := usecase.EditTaskInput{
				TaskID:         id,
				ActorID:        actor(),
				AddBlockers:    opts.AddBlockers,
				RemoveBlockers: opts.RemoveBlockers,
				ClearParent:    opts.NoParent,
				ClearStartDate: opts.ClearStart,
				ClearDueDate:   opts.ClearDue,
			}
			if flags.Changed("title") {
				in.Title = &opts.Title
			}
			if flags.Changed("body") {
				in.Description = &opts.Description
			}
			if flags.Changed("status") {
				st, err := parseStatusFlag(opts.Status)
				if err != nil {
					return err
				}
				in.Status = &st
			}
			if flags.Changed("priority") {
				p, err := parsePriorityFlag(opts.Priority)
				if err != nil {
					return err
				}
				in.Priority = &p
			}
			if flags.Changed("parent") {
				in.ParentID = &opts.ParentID
			}
			if flags.Changed("blockers") {
				in.BlockerIDs = &opts.Blockers
			}
			if flags.Changed("assign") {
				in.AssignedUserIDs = &opts.Assignees
			}
			if flags.Changed("tags") {
				in.TagIDs = &opts.Tags
			}
			if flags.Changed("progress") {
				in.Progress = &opts.Progress
			}
			if flags.Changed("start") {
				t, err := parseDate("startDate", opts.Start)
				if err != nil {
					return err
				}
				in.StartDate = &t
			}
			if flags.Changed("due") {
				t, err := parseDate("dueDate", opts.Due)
				if err != nil {
					return err
				}
				in.DueDate = &t
			}

			var out *usecase.EditTaskOutput
			err = withRetry(cmd, c, "edit_task", func() error {
				var err error
				out, err = c.EditTaskUseCase().Execute(cmd.Context(), in)
				return err
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out.History == nil {
				_, _ = fmt.Fprintf(w, "Task #%d unchanged\n", id)
				return nil
			}
			_, _ = fmt.Fprintf(w, "Updated task #%d\n", id)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Title, "title", "", "New title")
	f.StringVar(&opts.Description, "body", "", "New description")
	f.StringVar(&opts.Status, "status", "", "New status")
	f.StringVar(&opts.Priority, "priority", "", "New priority (empty clears it)")
	f.IntVar(&opts.ParentID, "parent", 0, "Move under this parent task")
	f.BoolVar(&opts.NoParent, "no-parent", false, "Make the task top-level")
	f.IntSliceVar(&opts.Blockers, "blockers", nil, "Replace the blocker set")
	f.IntSliceVar(&opts.AddBlockers, "add-blocker", nil, "Add a blocker (can specify multiple)")
	f.IntSliceVar(&opts.RemoveBlockers, "rm-blocker", nil, "Remove a blocker (can specify multiple)")
	f.StringArrayVar(&opts.Assignees, "assign", nil, "Replace the assignees (can specify multiple)")
	f.StringArrayVar(&opts.Tags, "tags", nil, "Replace the tags (can specify multiple)")
	f.IntVar(&opts.Progress, "progress", 0, "Progress percentage (0-100)")
	f.StringVar(&opts.Start, "start", "", "Planned start date")
	f.StringVar(&opts.Due, "due", "", "Due date")
	f.BoolVar(&opts.ClearStart, "clear-start", false, "Remove the start date")
	f.BoolVar(&opts.ClearDue, "clear-due", false, "Remove the due date")
	cmd.MarkFlagsMutuallyExclusive("parent", "no-parent")
	cmd.MarkFlagsMutuallyExclusive("start", "clear-start")
	cmd.MarkFlagsMutuallyExclusive("due", "clear-due")

	return cmd
}

// newRmCommand creates the rm command.
func newRmCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task and its subtasks",
		Long: `Delete a task together with its subtasks and their comments.

Deleted ids are removed from the blocker sets of the remaining tasks.
The history of deleted tasks is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			var out *usecase.DeleteTaskOutput
			err = withRetry(cmd, c, "delete_task", func() error {
				var err error
				out, err = c.DeleteTaskUseCase().Execute(cmd.Context(), usecase.DeleteTaskInput{
					ActorID: actor(),
					TaskID:  id,
				})
				return err
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Deleted %s\n", joinRefs(out.DeletedIDs))
			if len(out.UnblockedIDs) > 0 {
				_, _ = fmt.Fprintf(w, "Removed from blockers of %s\n", joinRefs(out.UnblockedIDs))
			}
			return nil
		},
	}
}

// newCompleteCommand creates the complete command.
func newCompleteCommand(c *app.Container) *cobra.Command {
	var reopen bool
	var status string

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete or reopen a task",
		Long: `Complete a task. The completion is refused while any subtask or blocker
is not COMPLETED; every open item is listed.

Use --reopen to move a completed task back to TO_DO, or to --status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			in := usecase.CompleteTaskInput{
				ActorID:   actor(),
				TaskID:    id,
				Completed: !reopen,
			}
			if status != "" {
				if in.Status, err = parseStatusFlag(status); err != nil {
					return err
				}
			}

			var out *usecase.CompleteTaskOutput
			err = withRetry(cmd, c, "complete_task", func() error {
				var err error
				out, err = c.CompleteTaskUseCase().Execute(cmd.Context(), in)
				if err == nil && !out.Success {
					return &domain.CompletionRejectedError{Result: domain.CompletionResult{
						Subtasks: out.Subtasks,
						Blockers: out.Blockers,
					}}
				}
				return err
			})
			if err != nil {
				if out != nil && !out.Success {
					printBlockingItems(cmd.OutOrStdout(), out.Subtasks, out.Blockers)
				}
				return err
			}

			w := cmd.OutOrStdout()
			if reopen {
				_, _ = fmt.Fprintf(w, "Reopened task #%d as %s\n", id, out.Task.Status.Display())
				return nil
			}
			_, _ = fmt.Fprintf(w, "Completed task #%d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reopen, "reopen", false, "Reopen instead of completing")
	cmd.Flags().StringVar(&status, "status", "", "Status after reopening (default TO_DO)")
	return cmd
}

// newCheckCommand creates the check command.
func newCheckCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Report whether a task could be completed now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			result, err := c.CheckCompletionUseCase().Execute(cmd.Context(), usecase.CheckCompletionInput{TaskID: id})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if result.Accepted {
				_, _ = fmt.Fprintf(w, "Task #%d can be completed\n", id)
				return nil
			}
			_, _ = fmt.Fprintf(w, "Task #%d cannot be completed yet\n", id)
			printBlockingItems(w, result.Subtasks, result.Blockers)
			return nil
		},
	}
}

func printBlockingItems(w io.Writer, subtasks, blockers []domain.BlockingItem) {
	section := func(heading string, items []domain.BlockingItem) {
		if len(items) == 0 {
			return
		}
		_, _ = fmt.Fprintf(w, "%s:\n", heading)
		for _, it := range items {
			_, _ = fmt.Fprintf(w, "  #%d [%s] %s\n", it.ID, it.Status.Display(), it.Title)
		}
	}
	section("Open subtasks", subtasks)
	section("Open blockers", blockers)
}

func joinRefs(ids []int) string {
	refs := make([]string, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, domain.TaskRef(id))
	}
	return strings.Join(refs, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
