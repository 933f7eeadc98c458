package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// NewTaskInput contains the parameters for creating a new task.
// Fields are ordered to minimize memory padding.
type NewTaskInput struct {
	ParentID        *int            `json:"parentId"`                          // Parent task ID (optional, nil = top-level task)
	StartDate       *time.Time      `json:"startDate"`                         // Planned start (optional)
	DueDate         *time.Time      `json:"dueDate"`                           // Planned end (optional)
	Title           string          `json:"title" validate:"notblank"`         // Task title (required)
	Description     string          `json:"description"`                       // Rich text (optional)
	Status          domain.Status   `json:"status" validate:"status"`          // Initial status (optional, default TO_DO)
	Priority        domain.Priority `json:"priority" validate:"priority"`      // Priority (optional)
	ActorID         string          `json:"-"`                                 // User performing the change
	OrgID           string          `json:"-"`                                 // Organization whose gate settings apply
	BlockerIDs      []int           `json:"blockerIds"`                        // Tasks that must complete first
	AssignedUserIDs []string        `json:"assignedUserIds"`                   // Assignees
	TagIDs          []string        `json:"tagIds"`                            // Tags
	CapsuleID       int             `json:"capsuleId" validate:"gt=0"`         // Owning capsule (required)
	Progress        int             `json:"progress" validate:"gte=0,lte=100"` // 0-100
}

// NewTaskOutput contains the result of creating a new task.
type NewTaskOutput struct {
	Task *domain.Task // The created task
}

// NewTask is the use case for creating a new task.
type NewTask struct {
	tasks    domain.TaskRepository
	settings domain.SettingsProvider
	clock    domain.Clock
	logger   domain.Logger
}

// NewNewTask creates a new NewTask use case.
func NewNewTask(tasks domain.TaskRepository, settings domain.SettingsProvider, clock domain.Clock, logger domain.Logger) *NewTask {
	return &NewTask{
		tasks:    tasks,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

// Execute creates a new task with the given input.
// Preconditions:
//   - Parent, when given, exists in the same capsule and is top-level
//   - Every blocker exists
//   - Creating directly as COMPLETED passes the completion gate
//
// The task and its created history entry are stored atomically.
func (uc *NewTask) Execute(ctx context.Context, in NewTaskInput) (*NewTaskOutput, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	settings, err := uc.settings.GetSettings(ctx, in.OrgID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var created *domain.Task
	err = uc.tasks.Update(ctx, func(tx domain.TaskTx) error {
		id, err := tx.NextID()
		if err != nil {
			return fmt.Errorf("generate task ID: %w", err)
		}
		if in.ParentID != nil {
			parent, err := tx.Get(*in.ParentID)
			if err != nil {
				return fmt.Errorf("get parent task: %w", err)
			}
			// A new task owns no subtasks.
			if err := domain.ValidateParentAssignment(id, parent, false); err != nil {
				return err
			}
			if parent.CapsuleID != in.CapsuleID {
				return domain.NewValidationError("parentId", "parent belongs to another capsule")
			}
		}
		if len(in.BlockerIDs) > 0 {
			g, err := shared.BlockerGraph(tx)
			if err != nil {
				return err
			}
			if err := domain.ValidateBlockerSet(id, in.BlockerIDs, g); err != nil {
				return err
			}
		}

		now := uc.clock.Now()
		task := &domain.Task{
			ID:              id,
			CapsuleID:       in.CapsuleID,
			ParentID:        in.ParentID,
			Title:           in.Title,
			Description:     in.Description,
			Status:          domain.StatusTodo,
			Priority:        in.Priority,
			BlockerIDs:      in.BlockerIDs,
			AssignedUserIDs: in.AssignedUserIDs,
			TagIDs:          in.TagIDs,
			Progress:        in.Progress,
			StartDate:       in.StartDate,
			DueDate:         in.DueDate,
			Created:         now,
			Updated:         now,
		}
		task.Normalize()

		if in.Status != "" {
			_, blockers, err := shared.GateInputs(tx, task)
			if err != nil {
				return err
			}
			task, err = domain.ApplyStatus(task, in.Status, nil, blockers, settings, now)
			if err != nil {
				return err
			}
		}

		if err := tx.Save(task); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		entry, err := domain.RecordChange(nil, task, in.ActorID, domain.ChangeCreated, now)
		if err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		if err := tx.AppendHistory(entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		created = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info(created.ID, "task", fmt.Sprintf("created: %q", created.Title))
	return &NewTaskOutput{Task: created}, nil
}
