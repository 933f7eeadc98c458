package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// EditTaskInput contains the parameters for editing a task.
// Nil pointers leave the field unchanged.
// Fields are ordered to minimize memory padding.
type EditTaskInput struct {
	Title           *string          `json:"title" validate:"omitnil,notblank"`
	Description     *string          `json:"description"`
	Status          *domain.Status   `json:"status" validate:"omitnil,status"`
	Priority        *domain.Priority `json:"priority" validate:"omitnil,priority"`
	ParentID        *int             `json:"parentId"` // Move under this parent
	BlockerIDs      *[]int           `json:"blockerIds"`
	AssignedUserIDs *[]string        `json:"assignedUserIds"`
	TagIDs          *[]string        `json:"tagIds"`
	Progress        *int             `json:"progress" validate:"omitnil,gte=0,lte=100"`
	StartDate       *time.Time       `json:"startDate"`
	DueDate         *time.Time       `json:"dueDate"`
	ActorID         string           `json:"-"`
	OrgID           string           `json:"-"`
	AddBlockers     []int            `json:"addBlockers"`
	RemoveBlockers  []int            `json:"removeBlockers"`
	TaskID          int              `json:"-"`
	ClearParent     bool             `json:"clearParent"` // Make the task top-level
	ClearStartDate  bool             `json:"clearStartDate"`
	ClearDueDate    bool             `json:"clearDueDate"`
}

func (in EditTaskInput) hasChanges() bool {
	return in.Title != nil || in.Description != nil || in.Status != nil || in.Priority != nil ||
		in.ParentID != nil || in.ClearParent || in.BlockerIDs != nil ||
		len(in.AddBlockers) > 0 || len(in.RemoveBlockers) > 0 ||
		in.AssignedUserIDs != nil || in.TagIDs != nil || in.Progress != nil ||
		in.StartDate != nil || in.ClearStartDate || in.DueDate != nil || in.ClearDueDate
}

// EditTaskOutput contains the result of editing a task.
type EditTaskOutput struct {
	Task    *domain.Task        // The task after the edit
	History *domain.TaskHistory // The recorded entry (nil when nothing changed)
}

// EditTask is the use case for editing a task.
type EditTask struct {
	tasks    domain.TaskRepository
	settings domain.SettingsProvider
	clock    domain.Clock
	logger   domain.Logger
}

// NewEditTask creates a new EditTask use case.
func NewEditTask(tasks domain.TaskRepository, settings domain.SettingsProvider, clock domain.Clock, logger domain.Logger) *EditTask {
	return &EditTask{
		tasks:    tasks,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

// Execute applies the patch in one transaction.
// Parent moves are checked against the one-level hierarchy, blocker changes
// against the blocker graph, and a status change into COMPLETED goes through
// the completion gate (refusal: *domain.CompletionRejectedError).
// An edit that changes nothing is accepted and records no history.
func (uc *EditTask) Execute(ctx context.Context, in EditTaskInput) (*EditTaskOutput, error) {
	if !in.hasChanges() {
		return nil, domain.ErrNoFieldsToUpdate
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	settings, err := uc.settings.GetSettings(ctx, in.OrgID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var out EditTaskOutput
	err = uc.tasks.Update(ctx, func(tx domain.TaskTx) error {
		before, err := shared.GetTask(tx, in.TaskID)
		if err != nil {
			return err
		}
		now := uc.clock.Now()
		after := before.Clone()
		applyFields(after, in)

		if err := uc.applyParent(tx, before, after, in); err != nil {
			return err
		}
		if err := applyBlockers(tx, before, after, in); err != nil {
			return err
		}
		after.Normalize()
		if in.Status != nil {
			subtasks, blockers, err := shared.GateInputs(tx, after)
			if err != nil {
				return err
			}
			after, err = domain.ApplyStatus(after, *in.Status, subtasks, blockers, settings, now)
			if err != nil {
				return err
			}
		}

		entry, err := domain.RecordChange(before, after, in.ActorID, "", now)
		if errors.Is(err, domain.ErrNoChanges) {
			if !movedOrProgressed(before, after) {
				out.Task = before
				return nil
			}
			// Parent and progress changes are stored but not diffed.
			entry = domain.NewEventEntry(after.ID, in.ActorID, domain.ChangeOther, nil, now)
		} else if err != nil {
			return fmt.Errorf("record history: %w", err)
		}

		after.Updated = now
		if err := tx.Save(after); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		if err := tx.AppendHistory(entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		out.Task = after
		out.History = entry
		return nil
	})
	if err != nil {
		var rejected *domain.CompletionRejectedError
		if errors.As(err, &rejected) {
			uc.logger.Warn(in.TaskID, "gate", rejected.Error())
		}
		return nil, err
	}

	if out.History != nil {
		uc.logger.Info(in.TaskID, "task", fmt.Sprintf("edited (%s): %v", out.History.ChangeType, out.History.ChangeDescription.Fields()))
	}
	return &out, nil
}

func applyFields(t *domain.Task, in EditTaskInput) {
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.AssignedUserIDs != nil {
		t.AssignedUserIDs = *in.AssignedUserIDs
	}
	if in.TagIDs != nil {
		t.TagIDs = *in.TagIDs
	}
	if in.Progress != nil {
		t.Progress = *in.Progress
	}
	switch {
	case in.ClearStartDate:
		t.StartDate = nil
	case in.StartDate != nil:
		v := *in.StartDate
		t.StartDate = &v
	}
	switch {
	case in.ClearDueDate:
		t.DueDate = nil
	case in.DueDate != nil:
		v := *in.DueDate
		t.DueDate = &v
	}
}

func (uc *EditTask) applyParent(tx domain.TaskTx, before, after *domain.Task, in EditTaskInput) error {
	if in.ClearParent {
		after.ParentID = nil
		return nil
	}
	if in.ParentID == nil || (before.ParentID != nil && *before.ParentID == *in.ParentID) {
		return nil
	}
	parent, err := tx.Get(*in.ParentID)
	if err != nil {
		return fmt.Errorf("get parent task: %w", err)
	}
	children, err := tx.GetChildren(before.ID)
	if err != nil {
		return fmt.Errorf("get subtasks: %w", err)
	}
	if err := domain.ValidateParentAssignment(before.ID, parent, len(children) > 0); err != nil {
		return err
	}
	if parent.CapsuleID != before.CapsuleID {
		return domain.NewValidationError("parentId", "parent belongs to another capsule")
	}
	id := parent.ID
	after.ParentID = &id
	return nil
}

func applyBlockers(tx domain.TaskTx, before, after *domain.Task, in EditTaskInput) error {
	if in.BlockerIDs == nil && len(in.AddBlockers) == 0 && len(in.RemoveBlockers) == 0 {
		return nil
	}
	set := before.BlockerIDs
	if in.BlockerIDs != nil {
		set = *in.BlockerIDs
	}
	set = append(slices.Clone(set), in.AddBlockers...)
	set = slices.DeleteFunc(set, func(id int) bool { return slices.Contains(in.RemoveBlockers, id) })
	set = domain.NormalizeIDs(set)
	if slices.Equal(set, domain.NormalizeIDs(before.BlockerIDs)) {
		return nil
	}

	g, err := shared.BlockerGraph(tx)
	if err != nil {
		return err
	}
	if err := domain.ValidateBlockerSet(before.ID, set, g); err != nil {
		return err
	}
	after.BlockerIDs = set
	return nil
}

func movedOrProgressed(before, after *domain.Task) bool {
	if before.Progress != after.Progress {
		return true
	}
	switch {
	case before.ParentID == nil && after.ParentID == nil:
		return false
	case before.ParentID == nil || after.ParentID == nil:
		return true
	default:
		return *before.ParentID != *after.ParentID
	}
}
