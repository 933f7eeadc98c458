package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/capsule/internal/domain"
)

func strPtr(s string) *string { return &s }

func statusPtr(s domain.Status) *domain.Status { return &s }

func TestEditTask_Execute_TitleDiffIsMinimal(t *testing.T) {
	// Setup
	f := newFixture()
	f.task(1, domain.StatusTodo, func(t *domain.Task) { t.Title = "Draft" })
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	// Execute
	out, err := uc.Execute(context.Background(), EditTaskInput{
		TaskID:  1,
		ActorID: "u1",
		Title:   strPtr("Final"),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Final", out.Task.Title)
	assert.Equal(t, testNow, out.Task.Updated)
	require.NotNil(t, out.History)
	assert.Equal(t, domain.ChangeUpdated, out.History.ChangeType)
	assert.Equal(t, domain.ChangeDescription{
		domain.FieldTitle: {Old: "Draft", New: "Final"},
	}, out.History.ChangeDescription)

	history := f.repo.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, out.History.ChangeDescription, history[0].ChangeDescription)
}

func TestEditTask_Execute_NoFields(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1})

	assert.ErrorIs(t, err, domain.ErrNoFieldsToUpdate)
}

func TestEditTask_Execute_NotFound(t *testing.T) {
	f := newFixture()
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 9, Title: strPtr("x")})

	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestEditTask_Execute_SameValueRecordsNothing(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, Title: strPtr("Task #1")})

	require.NoError(t, err)
	assert.Nil(t, out.History)
	assert.Empty(t, f.repo.History(1))
	assert.Equal(t, testNow.Add(-time.Hour), f.repo.Task(1).Updated)
}

func TestEditTask_Execute_BlockerCycle(t *testing.T) {
	// C is blocked by B; making B blocked by C closes the loop.
	f := newFixture()
	f.task(1, domain.StatusInProgress)
	f.task(2, domain.StatusTodo, withBlockers(1))
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, AddBlockers: []int{2}})

	var cycle *domain.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, 1, cycle.TaskID)
	assert.Equal(t, 2, cycle.BlockerID)
	assert.True(t, domain.IsGuardError(err))
	assert.Equal(t, []int{}, f.repo.Task(1).BlockerIDs)
	assert.Empty(t, f.repo.History(1))
}

func TestEditTask_Execute_SelfBlocker(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, AddBlockers: []int{1}})

	assert.ErrorIs(t, err, domain.ErrSelfReference)
}

func TestEditTask_Execute_AddAndRemoveBlockers(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	f.task(2, domain.StatusTodo)
	f.task(3, domain.StatusTodo, withBlockers(1))
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), EditTaskInput{
		TaskID:         3,
		AddBlockers:    []int{2},
		RemoveBlockers: []int{1},
	})

	require.NoError(t, err)
	assert.Equal(t, []int{2}, f.repo.Task(3).BlockerIDs)
	assert.Equal(t, domain.ChangeDescription{
		domain.FieldBlockerIDs: {Old: []int{1}, New: []int{2}},
	}, out.History.ChangeDescription)
}

func TestEditTask_Execute_ParentMove(t *testing.T) {
	t.Run("nesting under a subtask is rejected", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusTodo)
		f.task(2, domain.StatusTodo, withParent(1))
		f.task(3, domain.StatusTodo)
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		parent := 2
		_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 3, ParentID: &parent})

		assert.ErrorIs(t, err, domain.ErrDepth)
		assert.Nil(t, f.repo.Task(3).ParentID)
	})

	t.Run("task with subtasks cannot become a subtask", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusTodo)
		f.task(2, domain.StatusTodo, withParent(1))
		f.task(3, domain.StatusTodo)
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		parent := 3
		_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, ParentID: &parent})

		assert.ErrorIs(t, err, domain.ErrDepth)
	})

	t.Run("own parent is rejected", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusTodo)
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		parent := 1
		_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, ParentID: &parent})

		assert.ErrorIs(t, err, domain.ErrSelfReference)
	})

	t.Run("move records an other entry", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusTodo)
		f.task(2, domain.StatusTodo)
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		parent := 1
		out, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 2, ParentID: &parent, ActorID: "u1"})

		require.NoError(t, err)
		require.NotNil(t, f.repo.Task(2).ParentID)
		assert.Equal(t, 1, *f.repo.Task(2).ParentID)
		require.NotNil(t, out.History)
		assert.Equal(t, domain.ChangeOther, out.History.ChangeType)
		assert.Empty(t, out.History.ChangeDescription)
	})

	t.Run("clear parent", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusTodo)
		f.task(2, domain.StatusTodo, withParent(1))
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 2, ClearParent: true})

		require.NoError(t, err)
		assert.Nil(t, f.repo.Task(2).ParentID)
		assert.Len(t, f.repo.History(2), 1)
	})
}

func TestEditTask_Execute_StatusGate(t *testing.T) {
	t.Run("open subtask rejects completion", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusInProgress)
		f.task(2, domain.StatusTodo, withParent(1))
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		_, err := uc.Execute(context.Background(), EditTaskInput{
			TaskID: 1,
			Status: statusPtr(domain.StatusCompleted),
			Title:  strPtr("Renamed"),
		})

		var rejected *domain.CompletionRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Len(t, rejected.Result.Subtasks, 1)
		assert.Equal(t, "Task #1", f.repo.Task(1).Title, "rejected edits change nothing")
		require.NotEmpty(t, f.logger.Entries)
		assert.Equal(t, "WARN", f.logger.Entries[0].Level)
	})

	t.Run("disabled rule lets completion through", func(t *testing.T) {
		f := newFixture()
		f.settings.Settings.SubtasksEnabled = false
		f.task(1, domain.StatusInProgress)
		f.task(2, domain.StatusTodo, withParent(1))
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		out, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, Status: statusPtr(domain.StatusCompleted)})

		require.NoError(t, err)
		assert.Equal(t, domain.ChangeCompleted, out.History.ChangeType)
		require.NotNil(t, out.Task.CompletedDate)
	})

	t.Run("leaving completed clears the date", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusCompleted)
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		out, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, Status: statusPtr(domain.StatusReview)})

		require.NoError(t, err)
		assert.Equal(t, domain.StatusReview, out.Task.Status)
		assert.Nil(t, f.repo.Task(1).CompletedDate)
		assert.Equal(t, domain.ChangeStatusChanged, out.History.ChangeType)
	})

	t.Run("invalid status", func(t *testing.T) {
		f := newFixture()
		f.task(1, domain.StatusTodo)
		uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

		_, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, Status: statusPtr("Completed")})

		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})
}

func TestEditTask_Execute_AssigneesOnly(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	users := []string{"u2", "u1"}
	out, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, AssignedUserIDs: &users})

	require.NoError(t, err)
	assert.Equal(t, domain.ChangeAssignedUsersChanged, out.History.ChangeType)
	assert.Equal(t, domain.FieldChange{Old: []string{}, New: []string{"u1", "u2"}},
		out.History.ChangeDescription[domain.FieldAssignedUserIDs])
}

func TestEditTask_Execute_Dates(t *testing.T) {
	f := newFixture()
	due := testNow.Add(48 * time.Hour)
	f.task(1, domain.StatusTodo, func(t *domain.Task) { t.DueDate = &due })
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)

	start := testNow.Add(24 * time.Hour)
	out, err := uc.Execute(context.Background(), EditTaskInput{TaskID: 1, StartDate: &start, ClearDueDate: true})

	require.NoError(t, err)
	assert.Nil(t, f.repo.Task(1).DueDate)
	assert.Equal(t, []string{domain.FieldStartDate, domain.FieldDueDate}, out.History.ChangeDescription.Fields())
	assert.Equal(t, domain.FieldChange{Old: "2024-01-03T00:00:00Z", New: nil}, out.History.ChangeDescription[domain.FieldDueDate])
}

func TestEditTask_Execute_Conflict(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	f.repo.ConflictsLeft = 1
	uc := NewEditTask(f.repo, f.settings, f.clock, f.logger)
	in := EditTaskInput{TaskID: 1, Title: strPtr("Retried")}

	attempts := 0
	err := RetryOnConflict(context.Background(), 3, func() error {
		attempts++
		_, err := uc.Execute(context.Background(), in)
		return err
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "Retried", f.repo.Task(1).Title)
	assert.Len(t, f.repo.History(1), 1)
}
