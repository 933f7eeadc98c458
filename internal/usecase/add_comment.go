package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// AddCommentInput contains the parameters for adding a comment.
// Fields are ordered to minimize memory padding.
type AddCommentInput struct {
	ParentCommentID *int   `json:"parentCommentId"`          // Comment to reply to (optional)
	AuthorID        string `json:"-"`                        // Comment author
	Text            string `json:"text" validate:"notblank"` // Rich text (required)
	TaskID          int    `json:"-"`                        // Task to comment on
}

// AddCommentOutput contains the result of adding a comment.
type AddCommentOutput struct {
	Comment *domain.Comment
}

// AddComment is the use case for adding a comment or a reply to a task.
type AddComment struct {
	tasks  domain.TaskRepository
	clock  domain.Clock
	logger domain.Logger
}

// NewAddComment creates a new AddComment use case.
func NewAddComment(tasks domain.TaskRepository, clock domain.Clock, logger domain.Logger) *AddComment {
	return &AddComment{
		tasks:  tasks,
		clock:  clock,
		logger: logger,
	}
}

// Execute stores the comment and a commentAdded history entry.
// A reply must target an existing comment of the same task.
func (uc *AddComment) Execute(ctx context.Context, in AddCommentInput) (*AddCommentOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, domain.NewFieldError("text", domain.ErrEmptyMessage)
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var out AddCommentOutput
	err := uc.tasks.Update(ctx, func(tx domain.TaskTx) error {
		if _, err := shared.GetTask(tx, in.TaskID); err != nil {
			return err
		}
		if in.ParentCommentID != nil {
			parent, err := tx.GetComment(*in.ParentCommentID)
			if err != nil {
				return fmt.Errorf("get parent comment: %w", err)
			}
			if err := domain.ValidateNewComment(in.TaskID, parent); err != nil {
				return err
			}
		}

		now := uc.clock.Now()
		c, err := tx.AddComment(domain.Comment{
			TaskID:          in.TaskID,
			AuthorID:        in.AuthorID,
			Text:            in.Text,
			ParentCommentID: in.ParentCommentID,
			CreatedAt:       now,
		})
		if err != nil {
			return fmt.Errorf("add comment: %w", err)
		}
		entry := domain.NewEventEntry(in.TaskID, in.AuthorID, domain.ChangeCommentAdded, domain.ChangeDescription{
			domain.FieldCommentID: {Old: nil, New: c.ID},
		}, now)
		if err := tx.AppendHistory(entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		out.Comment = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info(in.TaskID, "comment", fmt.Sprintf("added comment %d", out.Comment.ID))
	return &out, nil
}
