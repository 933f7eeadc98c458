package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// GetCommentTreeInput contains the parameters for reading a comment thread.
type GetCommentTreeInput struct {
	TaskID int
}

// GetCommentTreeOutput contains the reconstructed threads of a task.
type GetCommentTreeOutput struct {
	Roots []*domain.Comment // Top-level comments with nested replies
	Count int               // Total number of comments
}

// GetCommentTree is the use case for reading a task's comment threads.
type GetCommentTree struct {
	tasks domain.TaskRepository
}

// NewGetCommentTree creates a new GetCommentTree use case.
func NewGetCommentTree(tasks domain.TaskRepository) *GetCommentTree {
	return &GetCommentTree{tasks: tasks}
}

// Execute returns the comment forest of a task, siblings ordered by creation time.
func (uc *GetCommentTree) Execute(ctx context.Context, in GetCommentTreeInput) (*GetCommentTreeOutput, error) {
	var comments []domain.Comment
	err := uc.tasks.View(ctx, func(tx domain.TaskTx) error {
		if _, err := shared.GetTask(tx, in.TaskID); err != nil {
			return err
		}
		var err error
		comments, err = tx.GetComments(in.TaskID)
		if err != nil {
			return fmt.Errorf("get comments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &GetCommentTreeOutput{
		Roots: domain.BuildHierarchy(comments),
		Count: len(comments),
	}, nil
}
