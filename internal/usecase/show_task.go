package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// ShowTaskInput contains the parameters for showing a task.
type ShowTaskInput struct {
	TaskID int
}

// ShowTaskOutput contains a task with its surroundings.
// Fields are ordered to minimize memory padding.
type ShowTaskOutput struct {
	Task         *domain.Task
	Parent       *domain.Task   // nil for top-level tasks
	Subtasks     []*domain.Task // Direct children
	Blockers     []*domain.Task // Tasks this one waits for
	Blocking     []*domain.Task // Tasks waiting for this one
	CommentCount int
}

// ShowTask is the use case for displaying task details.
type ShowTask struct {
	tasks domain.TaskRepository
}

// NewShowTask creates a new ShowTask use case.
func NewShowTask(tasks domain.TaskRepository) *ShowTask {
	return &ShowTask{tasks: tasks}
}

// Execute loads the task and its related tasks from one snapshot.
func (uc *ShowTask) Execute(ctx context.Context, in ShowTaskInput) (*ShowTaskOutput, error) {
	var out ShowTaskOutput
	err := uc.tasks.View(ctx, func(tx domain.TaskTx) error {
		task, err := shared.GetTask(tx, in.TaskID)
		if err != nil {
			return err
		}
		out.Task = task

		if task.ParentID != nil {
			if out.Parent, err = tx.Get(*task.ParentID); err != nil {
				return fmt.Errorf("get parent task: %w", err)
			}
		}
		if out.Subtasks, err = tx.GetChildren(task.ID); err != nil {
			return fmt.Errorf("get subtasks: %w", err)
		}
		for _, id := range task.BlockerIDs {
			b, err := tx.Get(id)
			if err != nil {
				return fmt.Errorf("get blocker #%d: %w", id, err)
			}
			if b != nil {
				out.Blockers = append(out.Blockers, b)
			}
		}

		all, err := tx.List(domain.TaskFilter{})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		for _, t := range all {
			if t.HasBlocker(task.ID) {
				out.Blocking = append(out.Blocking, t)
			}
		}

		comments, err := tx.GetComments(task.ID)
		if err != nil {
			return fmt.Errorf("get comments: %w", err)
		}
		out.CommentCount = len(comments)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
