package usecase

import (
	"context"
	"fmt"
	"slices"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// DeleteTaskInput contains the parameters for deleting a task.
type DeleteTaskInput struct {
	ActorID string // User performing the deletion
	TaskID  int    // Task ID to delete
}

// DeleteTaskOutput contains the result of deleting a task.
type DeleteTaskOutput struct {
	DeletedIDs   []int // The task and its subtasks, ascending
	UnblockedIDs []int // Remaining tasks whose blocker sets lost a deleted id, ascending
}

// DeleteTask is the use case for deleting a task.
type DeleteTask struct {
	tasks  domain.TaskRepository
	clock  domain.Clock
	logger domain.Logger
}

// NewDeleteTask creates a new DeleteTask use case.
func NewDeleteTask(tasks domain.TaskRepository, clock domain.Clock, logger domain.Logger) *DeleteTask {
	return &DeleteTask{
		tasks:  tasks,
		clock:  clock,
		logger: logger,
	}
}

// Execute deletes a task together with its subtasks and their comments.
// Every deleted id is removed from the blocker sets of the remaining tasks,
// each of which gets an updated entry. Each deleted task gets a deleted
// entry; history of deleted tasks is kept.
func (uc *DeleteTask) Execute(ctx context.Context, in DeleteTaskInput) (*DeleteTaskOutput, error) {
	var out DeleteTaskOutput
	err := uc.tasks.Update(ctx, func(tx domain.TaskTx) error {
		task, err := shared.GetTask(tx, in.TaskID)
		if err != nil {
			return err
		}
		children, err := tx.GetChildren(task.ID)
		if err != nil {
			return fmt.Errorf("get subtasks: %w", err)
		}
		removed := append([]*domain.Task{task}, children...)
		removedIDs := make([]int, 0, len(removed))
		for _, t := range removed {
			removedIDs = append(removedIDs, t.ID)
		}
		slices.Sort(removedIDs)
		now := uc.clock.Now()

		for _, t := range removed {
			if err := tx.DeleteComments(t.ID); err != nil {
				return fmt.Errorf("delete comments of #%d: %w", t.ID, err)
			}
			if err := tx.Delete(t.ID); err != nil {
				return fmt.Errorf("delete task #%d: %w", t.ID, err)
			}
			entry, err := domain.RecordChange(t, nil, in.ActorID, domain.ChangeDeleted, now)
			if err != nil {
				return fmt.Errorf("record history: %w", err)
			}
			if err := tx.AppendHistory(entry); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
		}

		remaining, err := tx.List(domain.TaskFilter{})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		for _, t := range remaining {
			kept := slices.DeleteFunc(slices.Clone(t.BlockerIDs), func(id int) bool {
				return slices.Contains(removedIDs, id)
			})
			if len(kept) == len(t.BlockerIDs) {
				continue
			}
			after := t.Clone()
			after.BlockerIDs = kept
			after.Updated = now
			entry, err := domain.RecordChange(t, after, in.ActorID, domain.ChangeUpdated, now)
			if err != nil {
				return fmt.Errorf("record history: %w", err)
			}
			if err := tx.Save(after); err != nil {
				return fmt.Errorf("save task #%d: %w", t.ID, err)
			}
			if err := tx.AppendHistory(entry); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
			out.UnblockedIDs = append(out.UnblockedIDs, t.ID)
		}
		out.DeletedIDs = removedIDs
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range out.DeletedIDs {
		uc.logger.Info(id, "task", "deleted")
	}
	return &out, nil
}
