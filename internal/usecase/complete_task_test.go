package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/capsule/internal/domain"
)

func TestCompleteTask_Execute_OpenSubtaskRejects(t *testing.T) {
	// Task A has subtasks A1 (TO_DO) and A2 (COMPLETED).
	f := newFixture()
	f.task(1, domain.StatusInProgress)
	f.task(2, domain.StatusTodo, withParent(1))
	f.task(3, domain.StatusCompleted, withParent(1))
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Completed: true})

	require.NoError(t, err, "a refusal is an outcome, not an error")
	assert.False(t, out.Success)
	assert.Nil(t, out.Task)
	assert.Equal(t, []domain.BlockingItem{{ID: 2, Title: "Task #2", Status: domain.StatusTodo}}, out.Subtasks)
	assert.Empty(t, out.Blockers)
	assert.Equal(t, domain.StatusInProgress, f.repo.Task(1).Status)
	assert.Empty(t, f.repo.History(1))
}

func TestCompleteTask_Execute_OpenBlockerRejects(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusInProgress)
	f.task(2, domain.StatusTodo, withBlockers(1))
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 2, Completed: true})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, []domain.BlockingItem{{ID: 1, Title: "Task #1", Status: domain.StatusInProgress}}, out.Blockers)
}

func TestCompleteTask_Execute_CollectsEveryViolation(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusCanceled)
	f.task(2, domain.StatusTodo, withBlockers(1))
	f.task(3, domain.StatusBlocked, withParent(2))
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 2, Completed: true})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Len(t, out.Subtasks, 1)
	require.Len(t, out.Blockers, 1)
	assert.Equal(t, domain.StatusCanceled, out.Blockers[0].Status, "canceled blockers still hold completion back")
}

func TestCompleteTask_Execute_Success(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusCompleted)
	f.task(2, domain.StatusInProgress, withBlockers(1))
	f.task(3, domain.StatusCompleted, withParent(2))
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 2, Completed: true, ActorID: "u1"})

	require.NoError(t, err)
	assert.True(t, out.Success)
	stored := f.repo.Task(2)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedDate)
	assert.Equal(t, testNow, *stored.CompletedDate)

	history := f.repo.History(2)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeCompleted, history[0].ChangeType)
	assert.Equal(t, domain.ChangeDescription{
		domain.FieldStatus: {Old: "IN_PROGRESS", New: "COMPLETED"},
	}, history[0].ChangeDescription)
}

func TestCompleteTask_Execute_SubtaskIgnoresSiblings(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	f.task(2, domain.StatusTodo, withParent(1))
	f.task(3, domain.StatusTodo, withParent(1))
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 2, Completed: true})

	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestCompleteTask_Execute_OrgSettings(t *testing.T) {
	f := newFixture()
	f.settings.ByOrg = map[string]domain.GateSettings{"acme": {SubtasksEnabled: true, BlockersEnabled: false}}
	f.task(1, domain.StatusTodo)
	f.task(2, domain.StatusTodo, withBlockers(1))
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 2, Completed: true, OrgID: "acme"})
	require.NoError(t, err)
	assert.True(t, out.Success)

	out, err = uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Completed: true, OrgID: "other"})
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestCompleteTask_Execute_Reopen(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusCompleted)
	// An open blocker does not prevent reopening.
	f.task(2, domain.StatusTodo)
	f.repo.AddTask(func() *domain.Task {
		t := f.repo.Task(1)
		t.BlockerIDs = []int{2}
		return t
	}())
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Completed: false, Status: domain.StatusNeedsRevision})

	require.NoError(t, err)
	assert.True(t, out.Success)
	stored := f.repo.Task(1)
	assert.Equal(t, domain.StatusNeedsRevision, stored.Status)
	assert.Nil(t, stored.CompletedDate)
	history := f.repo.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeStatusChanged, history[0].ChangeType)
}

func TestCompleteTask_Execute_ReopenOpenTaskIsNoop(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusInProgress)
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Completed: false})

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Nil(t, out.History)
	assert.Equal(t, domain.StatusInProgress, f.repo.Task(1).Status)
	assert.Equal(t, testNow.Add(-time.Hour), f.repo.Task(1).Updated)
	assert.Empty(t, f.repo.History(1))
}

func TestCompleteTask_Execute_CompleteTwiceRecordsOnce(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Completed: true})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	out, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Completed: true})
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, testNow, *f.repo.Task(1).CompletedDate)
	assert.Len(t, f.repo.History(1), 1)
}

func TestCompleteTask_Execute_Errors(t *testing.T) {
	f := newFixture()
	uc := NewCompleteTask(f.repo, f.settings, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Completed: true})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	_, err = uc.Execute(context.Background(), CompleteTaskInput{TaskID: 1, Status: "DONE"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
