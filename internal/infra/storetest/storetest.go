// Package storetest holds the behaviour every domain.TaskRepository must share.
// Store packages call Run from their own tests with a factory for a fresh,
// initialized store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/capsule/internal/domain"
)

// Factory returns a fresh, initialized repository.
type Factory func(t *testing.T) domain.TaskRepository

var base = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

// Run executes the contract suite.
func Run(t *testing.T, newRepo Factory) {
	t.Run("EmptyStore", func(t *testing.T) { testEmptyStore(t, newRepo(t)) })
	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, newRepo(t)) })
	t.Run("ListFilter", func(t *testing.T) { testListFilter(t, newRepo(t)) })
	t.Run("NextID", func(t *testing.T) { testNextID(t, newRepo(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newRepo(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("Comments", func(t *testing.T) { testComments(t, newRepo(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newRepo(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newRepo(t)) })
}

func save(t *testing.T, repo domain.TaskRepository, tasks ...*domain.Task) {
	t.Helper()
	err := repo.Update(context.Background(), func(tx domain.TaskTx) error {
		for _, task := range tasks {
			if err := tx.Save(task); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func get(t *testing.T, repo domain.TaskRepository, id int) *domain.Task {
	t.Helper()
	var got *domain.Task
	err := repo.View(context.Background(), func(tx domain.TaskTx) error {
		var err error
		got, err = tx.Get(id)
		return err
	})
	require.NoError(t, err)
	return got
}

func testEmptyStore(t *testing.T, repo domain.TaskRepository) {
	err := repo.View(context.Background(), func(tx domain.TaskTx) error {
		tasks, err := tx.List(domain.TaskFilter{})
		require.NoError(t, err)
		assert.Empty(t, tasks)

		task, err := tx.Get(1)
		require.NoError(t, err)
		assert.Nil(t, task)

		comments, err := tx.GetComments(1)
		require.NoError(t, err)
		assert.NotNil(t, comments)
		assert.Empty(t, comments)

		history, err := tx.ListHistory(1)
		require.NoError(t, err)
		assert.Empty(t, history)
		return nil
	})
	require.NoError(t, err)
}

func testSaveAndGet(t *testing.T, repo domain.TaskRepository) {
	parent := 1
	due := base.Add(48 * time.Hour)
	task := &domain.Task{
		ID:              2,
		CapsuleID:       7,
		Title:           "Write report",
		Description:     "<p>rich</p>",
		Status:          domain.StatusInProgress,
		Priority:        domain.PriorityHigh,
		ParentID:        &parent,
		BlockerIDs:      []int{5, 3},
		AssignedUserIDs: []string{"u2", "u1"},
		TagIDs:          []string{"t1"},
		Progress:        30,
		DueDate:         &due,
		Created:         base,
		Updated:         base,
	}
	save(t, repo, &domain.Task{ID: 1, CapsuleID: 7, Title: "Parent", Status: domain.StatusTodo, Created: base, Updated: base}, task)

	got := get(t, repo, 2)
	require.NotNil(t, got)

	want := task.Clone()
	want.Normalize()
	assert.Equal(t, want, got)
}

func testListFilter(t *testing.T, repo domain.TaskRepository) {
	parent := 1
	save(t, repo,
		&domain.Task{ID: 3, CapsuleID: 2, Title: "C", Status: domain.StatusTodo, Created: base, Updated: base},
		&domain.Task{ID: 1, CapsuleID: 1, Title: "A", Status: domain.StatusTodo, Created: base, Updated: base},
		&domain.Task{ID: 2, CapsuleID: 1, Title: "B", Status: domain.StatusCompleted, ParentID: &parent, Created: base, Updated: base},
	)

	ids := func(filter domain.TaskFilter) []int {
		var out []int
		err := repo.View(context.Background(), func(tx domain.TaskTx) error {
			tasks, err := tx.List(filter)
			for _, task := range tasks {
				out = append(out, task.ID)
			}
			return err
		})
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, []int{1, 2, 3}, ids(domain.TaskFilter{}))
	assert.Equal(t, []int{1, 2}, ids(domain.TaskFilter{CapsuleID: 1}))
	assert.Equal(t, []int{2}, ids(domain.TaskFilter{ParentID: &parent}))
	assert.Equal(t, []int{1, 3}, ids(domain.TaskFilter{RootsOnly: true}))
	assert.Equal(t, []int{2}, ids(domain.TaskFilter{Status: domain.StatusCompleted}))

	err := repo.View(context.Background(), func(tx domain.TaskTx) error {
		children, err := tx.GetChildren(1)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, 2, children[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func testNextID(t *testing.T, repo domain.TaskRepository) {
	var first, second int
	err := repo.Update(context.Background(), func(tx domain.TaskTx) error {
		var err error
		if first, err = tx.NextID(); err != nil {
			return err
		}
		second, err = tx.NextID()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)

	// A saved task with a higher ID moves the counter past it.
	save(t, repo, &domain.Task{ID: 10, Title: "x", Status: domain.StatusTodo, Created: base, Updated: base})
	var next int
	err = repo.Update(context.Background(), func(tx domain.TaskTx) error {
		var err error
		next, err = tx.NextID()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 11, next)
}

func testRollback(t *testing.T, repo domain.TaskRepository) {
	save(t, repo, &domain.Task{ID: 1, Title: "Original", Status: domain.StatusTodo, Created: base, Updated: base})

	boom := errors.New("boom")
	err := repo.Update(context.Background(), func(tx domain.TaskTx) error {
		task, err := tx.Get(1)
		if err != nil {
			return err
		}
		task.Title = "Changed"
		if err := tx.Save(task); err != nil {
			return err
		}
		if _, err := tx.AddComment(domain.Comment{TaskID: 1, Text: "lost", CreatedAt: base}); err != nil {
			return err
		}
		if err := tx.AppendHistory(domain.NewEventEntry(1, "u1", domain.ChangeOther, nil, base)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, "Original", get(t, repo, 1).Title)
	err = repo.View(context.Background(), func(tx domain.TaskTx) error {
		comments, err := tx.GetComments(1)
		require.NoError(t, err)
		assert.Empty(t, comments)
		history, err := tx.ListHistory(1)
		require.NoError(t, err)
		assert.Empty(t, history)
		return nil
	})
	require.NoError(t, err)
}

func testDelete(t *testing.T, repo domain.TaskRepository) {
	save(t, repo, &domain.Task{ID: 1, Title: "A", Status: domain.StatusTodo, Created: base, Updated: base})

	err := repo.Update(context.Background(), func(tx domain.TaskTx) error {
		return tx.Delete(1)
	})
	require.NoError(t, err)
	assert.Nil(t, get(t, repo, 1))

	err = repo.Update(context.Background(), func(tx domain.TaskTx) error {
		return tx.Delete(1)
	})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func testComments(t *testing.T, repo domain.TaskRepository) {
	save(t, repo,
		&domain.Task{ID: 1, Title: "A", Status: domain.StatusTodo, Created: base, Updated: base},
		&domain.Task{ID: 2, Title: "B", Status: domain.StatusTodo, Created: base, Updated: base},
	)

	var first, reply *domain.Comment
	err := repo.Update(context.Background(), func(tx domain.TaskTx) error {
		var err error
		first, err = tx.AddComment(domain.Comment{TaskID: 1, AuthorID: "u1", Text: "hello", CreatedAt: base})
		if err != nil {
			return err
		}
		reply, err = tx.AddComment(domain.Comment{TaskID: 1, AuthorID: "u2", Text: "hi", ParentCommentID: &first.ID, CreatedAt: base.Add(time.Minute)})
		if err != nil {
			return err
		}
		_, err = tx.AddComment(domain.Comment{TaskID: 2, AuthorID: "u1", Text: "other", CreatedAt: base})
		return err
	})
	require.NoError(t, err)
	assert.Greater(t, reply.ID, first.ID)

	err = repo.View(context.Background(), func(tx domain.TaskTx) error {
		comments, err := tx.GetComments(1)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		assert.Equal(t, first.ID, comments[0].ID)
		assert.Equal(t, "hello", comments[0].Text)
		require.NotNil(t, comments[1].ParentCommentID)
		assert.Equal(t, first.ID, *comments[1].ParentCommentID)
		assert.True(t, base.Add(time.Minute).Equal(comments[1].CreatedAt))

		got, err := tx.GetComment(reply.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 1, got.TaskID)

		missing, err := tx.GetComment(999)
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)

	err = repo.Update(context.Background(), func(tx domain.TaskTx) error {
		return tx.DeleteComments(1)
	})
	require.NoError(t, err)
	err = repo.View(context.Background(), func(tx domain.TaskTx) error {
		comments, err := tx.GetComments(1)
		require.NoError(t, err)
		assert.Empty(t, comments)
		comments, err = tx.GetComments(2)
		require.NoError(t, err)
		assert.Len(t, comments, 1)
		return nil
	})
	require.NoError(t, err)
}

func testHistory(t *testing.T, repo domain.TaskRepository) {
	task := &domain.Task{ID: 1, Title: "Draft", Status: domain.StatusTodo, BlockerIDs: []int{}, Created: base, Updated: base}
	created, err := domain.RecordChange(nil, task, "u1", domain.ChangeCreated, base)
	require.NoError(t, err)
	after := task.Clone()
	after.Title = "Final"
	after.BlockerIDs = []int{4, 2}
	after.AssignedUserIDs = []string{"u9"}
	updated, err := domain.RecordChange(task, after, "u2", domain.ChangeUpdated, base.Add(time.Second))
	require.NoError(t, err)
	comment := domain.NewEventEntry(1, "u3", domain.ChangeCommentAdded, domain.ChangeDescription{
		domain.FieldCommentID: {New: 5},
	}, base.Add(time.Second))

	err = repo.Update(context.Background(), func(tx domain.TaskTx) error {
		if err := tx.Save(task); err != nil {
			return err
		}
		for _, h := range []*domain.TaskHistory{created, updated, comment} {
			if err := tx.AppendHistory(h); err != nil {
				return err
			}
		}
		return tx.AppendHistory(domain.NewEventEntry(2, "u1", domain.ChangeOther, nil, base))
	})
	require.NoError(t, err)
	assert.Less(t, created.ID, updated.ID)
	assert.Less(t, updated.ID, comment.ID)

	// History outlives the task.
	err = repo.Update(context.Background(), func(tx domain.TaskTx) error {
		return tx.Delete(1)
	})
	require.NoError(t, err)

	err = repo.View(context.Background(), func(tx domain.TaskTx) error {
		history, err := tx.ListHistory(1)
		require.NoError(t, err)
		require.Len(t, history, 3)

		assert.Equal(t, domain.ChangeCreated, history[0].ChangeType)
		assert.Equal(t, domain.ChangeUpdated, history[1].ChangeType)
		assert.Equal(t, domain.ChangeCommentAdded, history[2].ChangeType)
		assert.Equal(t, "u2", history[1].UserID)
		assert.True(t, base.Add(time.Second).Equal(history[1].Timestamp))

		assert.Equal(t, domain.ChangeDescription{
			domain.FieldTitle:           {Old: "Draft", New: "Final"},
			domain.FieldBlockerIDs:      {Old: []int{}, New: []int{2, 4}},
			domain.FieldAssignedUserIDs: {Old: []string{}, New: []string{"u9"}},
		}, history[1].ChangeDescription)
		assert.Equal(t, 5, history[2].ChangeDescription[domain.FieldCommentID].New)
		assert.Equal(t, created.ChangeDescription, history[0].ChangeDescription)
		return nil
	})
	require.NoError(t, err)
}

func testConcurrentUpdates(t *testing.T, repo domain.TaskRepository) {
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Update(context.Background(), func(tx domain.TaskTx) error {
				id, err := tx.NextID()
				if err != nil {
					return err
				}
				return tx.Save(&domain.Task{ID: id, Title: fmt.Sprintf("worker %d", i), Status: domain.StatusTodo, Created: base, Updated: base})
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	err := repo.View(context.Background(), func(tx domain.TaskTx) error {
		tasks, err := tx.List(domain.TaskFilter{})
		require.NoError(t, err)
		assert.Len(t, tasks, workers)
		seen := map[int]bool{}
		for _, task := range tasks {
			assert.False(t, seen[task.ID], "duplicate id %d", task.ID)
			seen[task.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
}
