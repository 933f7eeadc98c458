package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// CompleteTaskInput contains the parameters for toggling task completion.
type CompleteTaskInput struct {
	ActorID   string        // User performing the change
	OrgID     string        // Organization whose gate settings apply
	Status    domain.Status // Target status when un-completing (default TO_DO)
	TaskID    int           // Task ID
	Completed bool          // true: complete the task, false: reopen it
}

// CompleteTaskOutput contains the result of a completion toggle.
// On refusal Success is false, Task is nil and Subtasks / Blockers list
// every open item.
// Fields are ordered to minimize memory padding.
type CompleteTaskOutput struct {
	Task     *domain.Task          `json:"task,omitempty"`
	History  *domain.TaskHistory   `json:"-"`
	Subtasks []domain.BlockingItem `json:"subtasks,omitempty"`
	Blockers []domain.BlockingItem `json:"blockers,omitempty"`
	Success  bool                  `json:"success"`
}

// CompleteTask is the use case for completing or reopening a task.
type CompleteTask struct {
	tasks    domain.TaskRepository
	settings domain.SettingsProvider
	clock    domain.Clock
	logger   domain.Logger
}

// NewCompleteTask creates a new CompleteTask use case.
func NewCompleteTask(tasks domain.TaskRepository, settings domain.SettingsProvider, clock domain.Clock, logger domain.Logger) *CompleteTask {
	return &CompleteTask{
		tasks:    tasks,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

// Execute completes or reopens the task.
// Completing runs the completion gate; a refusal is reported in the output,
// not as an error, and changes nothing. Reopening is always accepted and
// clears the completion date. History is recorded only when the status
// actually changes.
func (uc *CompleteTask) Execute(ctx context.Context, in CompleteTaskInput) (*CompleteTaskOutput, error) {
	if in.Status != "" && !in.Status.IsValid() {
		return nil, domain.NewFieldError("status", domain.ErrInvalidStatus)
	}
	settings, err := uc.settings.GetSettings(ctx, in.OrgID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var out CompleteTaskOutput
	err = uc.tasks.Update(ctx, func(tx domain.TaskTx) error {
		task, err := shared.GetTask(tx, in.TaskID)
		if err != nil {
			return err
		}
		now := uc.clock.Now()

		var after *domain.Task
		changeType := domain.ChangeCompleted
		if in.Completed {
			subtasks, blockers, err := shared.GateInputs(tx, task)
			if err != nil {
				return err
			}
			res := domain.AttemptComplete(task, subtasks, blockers, settings, now)
			if !res.Accepted {
				out.Subtasks = res.Subtasks
				out.Blockers = res.Blockers
				return nil
			}
			after = res.Task
		} else {
			after = domain.Uncomplete(task, in.Status, now)
			changeType = domain.ChangeStatusChanged
		}

		out.Success = true
		out.Task = after
		if after.Status == task.Status {
			return nil
		}
		if err := tx.Save(after); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		entry, err := domain.RecordChange(task, after, in.ActorID, changeType, now)
		if err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		if err := tx.AppendHistory(entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		out.History = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case !out.Success:
		uc.logger.Warn(in.TaskID, "gate", fmt.Sprintf("completion rejected: %d open subtask(s), %d open blocker(s)",
			len(out.Subtasks), len(out.Blockers)))
	case out.History != nil:
		uc.logger.Info(in.TaskID, "task", fmt.Sprintf("status: %s", out.Task.Status))
	}
	return &out, nil
}
