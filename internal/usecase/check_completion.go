package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// CheckCompletionInput contains the parameters for a completion dry run.
type CheckCompletionInput struct {
	OrgID  string // Organization whose gate settings apply
	TaskID int    // Task ID
}

// CheckCompletion reports whether a task could be completed now, without
// changing anything.
type CheckCompletion struct {
	tasks    domain.TaskRepository
	settings domain.SettingsProvider
	clock    domain.Clock
}

// NewCheckCompletion creates a new CheckCompletion use case.
func NewCheckCompletion(tasks domain.TaskRepository, settings domain.SettingsProvider, clock domain.Clock) *CheckCompletion {
	return &CheckCompletion{
		tasks:    tasks,
		settings: settings,
		clock:    clock,
	}
}

// Execute runs the completion gate against a consistent snapshot.
func (uc *CheckCompletion) Execute(ctx context.Context, in CheckCompletionInput) (*domain.CompletionResult, error) {
	settings, err := uc.settings.GetSettings(ctx, in.OrgID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var res domain.CompletionResult
	err = uc.tasks.View(ctx, func(tx domain.TaskTx) error {
		task, err := shared.GetTask(tx, in.TaskID)
		if err != nil {
			return err
		}
		subtasks, blockers, err := shared.GateInputs(tx, task)
		if err != nil {
			return err
		}
		res = domain.AttemptComplete(task, subtasks, blockers, settings, uc.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
