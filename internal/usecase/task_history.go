package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/capsule/internal/domain"
)

// GetHistoryInput contains the parameters for reading a task's history.
type GetHistoryInput struct {
	TaskID int
}

// GetHistoryOutput contains a task's history, oldest first.
type GetHistoryOutput struct {
	Entries []domain.TaskHistory
	Deleted bool // The task no longer exists
}

// GetHistory is the use case for reading the audit trail of a task.
type GetHistory struct {
	tasks domain.TaskRepository
}

// NewGetHistory creates a new GetHistory use case.
func NewGetHistory(tasks domain.TaskRepository) *GetHistory {
	return &GetHistory{tasks: tasks}
}

// Execute returns every entry of the task ordered by timestamp, then id.
// Deleted tasks keep their history; an id that never had a task fails with
// domain.ErrTaskNotFound.
func (uc *GetHistory) Execute(ctx context.Context, in GetHistoryInput) (*GetHistoryOutput, error) {
	var out GetHistoryOutput
	err := uc.tasks.View(ctx, func(tx domain.TaskTx) error {
		task, err := tx.Get(in.TaskID)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		out.Entries, err = tx.ListHistory(in.TaskID)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		if task == nil {
			if len(out.Entries) == 0 {
				return domain.ErrTaskNotFound
			}
			out.Deleted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
