package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/capsule/internal/domain"
)

// ListTasksInput contains the parameters for listing tasks.
type ListTasksInput struct {
	ParentID  *int   // Filter by parent task ID (nil = all tasks)
	Status    string // Filter by status, canonical name or display label (empty = any)
	CapsuleID int    // Filter by capsule (0 = any)
	RootsOnly bool   // Only top-level tasks
}

// ListTasksOutput contains the result of listing tasks.
type ListTasksOutput struct {
	Tasks []*domain.Task // Matching tasks ordered by ID
}

// ListTasks is the use case for listing tasks.
type ListTasks struct {
	tasks domain.TaskRepository
}

// NewListTasks creates a new ListTasks use case.
func NewListTasks(tasks domain.TaskRepository) *ListTasks {
	return &ListTasks{tasks: tasks}
}

// Execute lists tasks matching the given input criteria.
func (uc *ListTasks) Execute(ctx context.Context, in ListTasksInput) (*ListTasksOutput, error) {
	filter := domain.TaskFilter{
		ParentID:  in.ParentID,
		CapsuleID: in.CapsuleID,
		RootsOnly: in.RootsOnly,
	}
	if in.Status != "" {
		status, err := domain.ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	var tasks []*domain.Task
	err := uc.tasks.View(ctx, func(tx domain.TaskTx) error {
		var err error
		tasks, err = tx.List(filter)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return &ListTasksOutput{Tasks: tasks}, nil
}
