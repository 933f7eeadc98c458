package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gateNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAttemptComplete_OpenSubtask(t *testing.T) {
	// Setup: task A with subtasks A1 (TO_DO) and A2 (COMPLETED)
	a := &Task{ID: 1, Title: "A", Status: StatusInProgress}
	parent := a.ID
	a1 := &Task{ID: 2, Title: "A1", Status: StatusTodo, ParentID: &parent}
	a2 := &Task{ID: 3, Title: "A2", Status: StatusCompleted, ParentID: &parent}

	// Execute
	res := AttemptComplete(a, []*Task{a1, a2}, nil, DefaultGateSettings(), gateNow)

	// Assert
	assert.False(t, res.Accepted)
	assert.Nil(t, res.Task)
	assert.Equal(t, []BlockingItem{{ID: 2, Title: "A1", Status: StatusTodo}}, res.Subtasks)
	assert.Empty(t, res.Blockers)
	assert.Equal(t, StatusInProgress, a.Status, "input must not change")
}

func TestAttemptComplete_OpenBlocker(t *testing.T) {
	b := &Task{ID: 1, Title: "B", Status: StatusInProgress}
	c := &Task{ID: 2, Title: "C", Status: StatusTodo, BlockerIDs: []int{1}}

	res := AttemptComplete(c, nil, []*Task{b}, DefaultGateSettings(), gateNow)

	assert.False(t, res.Accepted)
	assert.Equal(t, []BlockingItem{{ID: 1, Title: "B", Status: StatusInProgress}}, res.Blockers)
	assert.Empty(t, res.Subtasks)
}

func TestAttemptComplete_CollectsAllViolations(t *testing.T) {
	task := &Task{ID: 1, Title: "T", Status: StatusTodo, BlockerIDs: []int{3, 4}}
	parent := 1
	subtasks := []*Task{
		{ID: 2, Title: "S", Status: StatusBlocked, ParentID: &parent},
	}
	blockers := []*Task{
		{ID: 3, Title: "X", Status: StatusCanceled},
		{ID: 4, Title: "Y", Status: StatusReview},
	}

	res := AttemptComplete(task, subtasks, blockers, DefaultGateSettings(), gateNow)

	assert.False(t, res.Accepted)
	assert.Len(t, res.Subtasks, 1)
	assert.Len(t, res.Blockers, 2)
}

func TestAttemptComplete_Accepted(t *testing.T) {
	task := &Task{ID: 1, Title: "T", Status: StatusReview, Progress: 40, BlockerIDs: []int{2}}
	blockers := []*Task{{ID: 2, Status: StatusCompleted}}

	res := AttemptComplete(task, nil, blockers, DefaultGateSettings(), gateNow)

	require.True(t, res.Accepted)
	require.NotNil(t, res.Task)
	assert.Equal(t, StatusCompleted, res.Task.Status)
	require.NotNil(t, res.Task.CompletedDate)
	assert.Equal(t, gateNow, *res.Task.CompletedDate)
	assert.Equal(t, 40, res.Task.Progress, "progress is not forced")
	assert.Nil(t, task.CompletedDate, "input must not change")
	assert.Equal(t, StatusReview, task.Status)
}

func TestAttemptComplete_AlreadyCompleted(t *testing.T) {
	earlier := gateNow.Add(-time.Hour)
	tests := []struct {
		name string
		date *time.Time
		want time.Time
	}{
		{name: "keeps existing date", date: &earlier, want: earlier},
		{name: "fills missing date", date: nil, want: gateNow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{ID: 1, Status: StatusCompleted, CompletedDate: tt.date}

			res := AttemptComplete(task, nil, nil, DefaultGateSettings(), gateNow)

			require.True(t, res.Accepted)
			assert.Equal(t, StatusCompleted, res.Task.Status)
			require.NotNil(t, res.Task.CompletedDate)
			assert.Equal(t, tt.want, *res.Task.CompletedDate)
		})
	}
}

func TestAttemptComplete_NoSubtasksOrBlockers(t *testing.T) {
	res := AttemptComplete(&Task{ID: 1, Status: StatusBacklog}, nil, nil, DefaultGateSettings(), gateNow)
	assert.True(t, res.Accepted)
}

func TestAttemptComplete_SubtaskExemptFromSubtaskRule(t *testing.T) {
	parent := 1
	sub := &Task{ID: 2, ParentID: &parent, Status: StatusTodo}
	// A subtask never has subtasks of its own, but even if given some the rule does not apply.
	res := AttemptComplete(sub, []*Task{{ID: 3, Status: StatusTodo}}, nil, DefaultGateSettings(), gateNow)
	assert.True(t, res.Accepted)
}

func TestAttemptComplete_Settings(t *testing.T) {
	task := &Task{ID: 1, Status: StatusTodo, BlockerIDs: []int{3}}
	parent := 1
	subtasks := []*Task{{ID: 2, Status: StatusTodo, ParentID: &parent}}
	blockers := []*Task{{ID: 3, Status: StatusTodo}}

	tests := []struct {
		name         string
		settings     GateSettings
		wantAccepted bool
		wantSubtasks int
		wantBlockers int
	}{
		{"both enabled", GateSettings{SubtasksEnabled: true, BlockersEnabled: true}, false, 1, 1},
		{"subtasks only", GateSettings{SubtasksEnabled: true}, false, 1, 0},
		{"blockers only", GateSettings{BlockersEnabled: true}, false, 0, 1},
		{"both disabled", GateSettings{}, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := AttemptComplete(task, subtasks, blockers, tt.settings, gateNow)
			assert.Equal(t, tt.wantAccepted, res.Accepted)
			assert.Len(t, res.Subtasks, tt.wantSubtasks)
			assert.Len(t, res.Blockers, tt.wantBlockers)
		})
	}
}

func TestUncomplete(t *testing.T) {
	done := gateNow.Add(-time.Hour)
	task := &Task{ID: 1, Status: StatusCompleted, CompletedDate: &done}

	got := Uncomplete(task, "", gateNow)
	assert.Equal(t, StatusTodo, got.Status)
	assert.Nil(t, got.CompletedDate)
	assert.Equal(t, gateNow, got.Updated)
	assert.NotNil(t, task.CompletedDate, "input must not change")

	got = Uncomplete(task, StatusReview, gateNow)
	assert.Equal(t, StatusReview, got.Status)

	open := &Task{ID: 2, Status: StatusInProgress}
	got = Uncomplete(open, "", gateNow)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.True(t, got.Updated.IsZero(), "no-op on an incomplete task")
}

func TestApplyStatus(t *testing.T) {
	done := gateNow.Add(-time.Hour)
	blocker := &Task{ID: 9, Title: "B", Status: StatusTodo}

	t.Run("open to open is unguarded", func(t *testing.T) {
		got, err := ApplyStatus(&Task{ID: 1, Status: StatusTodo}, StatusBlocked, nil, []*Task{blocker}, DefaultGateSettings(), gateNow)
		require.NoError(t, err)
		assert.Equal(t, StatusBlocked, got.Status)
	})

	t.Run("into completed is gated", func(t *testing.T) {
		_, err := ApplyStatus(&Task{ID: 1, Status: StatusTodo, BlockerIDs: []int{9}}, StatusCompleted, nil, []*Task{blocker}, DefaultGateSettings(), gateNow)
		var rerr *CompletionRejectedError
		require.True(t, errors.As(err, &rerr))
		assert.ErrorIs(t, err, ErrCompletionRejected)
		assert.Equal(t, []BlockingItem{{ID: 9, Title: "B", Status: StatusTodo}}, rerr.Result.Blockers)
	})

	t.Run("into completed sets date", func(t *testing.T) {
		got, err := ApplyStatus(&Task{ID: 1, Status: StatusTodo}, StatusCompleted, nil, nil, DefaultGateSettings(), gateNow)
		require.NoError(t, err)
		require.NotNil(t, got.CompletedDate)
		assert.Equal(t, gateNow, *got.CompletedDate)
	})

	t.Run("leaving completed clears date", func(t *testing.T) {
		got, err := ApplyStatus(&Task{ID: 1, Status: StatusCompleted, CompletedDate: &done}, StatusInProgress, nil, nil, DefaultGateSettings(), gateNow)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, got.Status)
		assert.Nil(t, got.CompletedDate)
	})

	t.Run("same status", func(t *testing.T) {
		got, err := ApplyStatus(&Task{ID: 1, Status: StatusCompleted, CompletedDate: &done}, StatusCompleted, nil, []*Task{blocker}, DefaultGateSettings(), gateNow)
		require.NoError(t, err)
		assert.Equal(t, done, *got.CompletedDate)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := ApplyStatus(&Task{ID: 1, Status: StatusTodo}, "Completed", nil, nil, DefaultGateSettings(), gateNow)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}
