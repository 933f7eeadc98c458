package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase"
)

// newCommentCommand creates the comment command.
func newCommentCommand(c *app.Container) *cobra.Command {
	var replyTo int

	cmd := &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Comment on a task",
		Long: `Add a comment to a task, or a reply to one of its comments with --reply-to.

Examples:
  capsule comment 3 "Waiting on legal review"
  capsule comment 3 --reply-to 7 "Approved"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			in := usecase.AddCommentInput{
				TaskID:   id,
				AuthorID: actor(),
				Text:     args[1],
			}
			if replyTo > 0 {
				in.ParentCommentID = &replyTo
			}

			var out *usecase.AddCommentOutput
			err = withRetry(cmd, c, "add_comment", func() error {
				var err error
				out, err = c.AddCommentUseCase().Execute(cmd.Context(), in)
				return err
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added comment %d to task #%d\n", out.Comment.ID, id)
			return nil
		},
	}

	cmd.Flags().IntVar(&replyTo, "reply-to", 0, "Comment ID to reply to")
	return cmd
}

// newCommentsCommand creates the comments command.
func newCommentsCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "comments <id>",
		Short: "Show the comment threads of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			out, err := c.GetCommentTreeUseCase().Execute(cmd.Context(), usecase.GetCommentTreeInput{TaskID: id})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.Roots)
			}
			w := cmd.OutOrStdout()
			if out.Count == 0 {
				_, _ = fmt.Fprintln(w, "No comments.")
				return nil
			}
			for _, root := range out.Roots {
				printComment(w, root, 0)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printComment(w io.Writer, comment *domain.Comment, depth int) {
	indent := strings.Repeat("    ", depth)
	authorPart := ""
	if comment.AuthorID != "" {
		authorPart = " " + comment.AuthorID
	}
	_, _ = fmt.Fprintf(w, "%s[%d] %s%s\n", indent, comment.ID, comment.CreatedAt.Format(time.RFC3339), authorPart)
	for _, line := range strings.Split(strings.TrimSpace(comment.Text), "\n") {
		_, _ = fmt.Fprintf(w, "%s  %s\n", indent, line)
	}
	for _, reply := range comment.Replies {
		printComment(w, reply, depth+1)
	}
}
