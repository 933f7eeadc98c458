// Package shared provides shared utilities for use cases.
package shared

import (
	"fmt"

	"github.com/runoshun/capsule/internal/domain"
)

// GetTask retrieves a task by ID and returns domain.ErrTaskNotFound if not found.
// This centralizes the common pattern of:
//
//	task, err := tx.Get(taskID)
//	if err != nil { return nil, fmt.Errorf("get task: %w", err) }
//	if task == nil { return nil, domain.ErrTaskNotFound }
func GetTask(tx domain.TaskReader, taskID int) (*domain.Task, error) {
	task, err := tx.Get(taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// GetTasks retrieves tasks by ID in the given order. Missing ids fail with
// notFound.
func GetTasks(tx domain.TaskReader, ids []int, notFound error) ([]*domain.Task, error) {
	out := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := tx.Get(id)
		if err != nil {
			return nil, fmt.Errorf("get task #%d: %w", id, err)
		}
		if t == nil {
			return nil, fmt.Errorf("#%d: %w", id, notFound)
		}
		out = append(out, t)
	}
	return out, nil
}

// GateInputs loads what the completion gate needs for task: its direct
// subtasks and its blockers. Dangling blocker ids are skipped, they cannot
// hold a completion back.
func GateInputs(tx domain.TaskReader, task *domain.Task) (subtasks, blockers []*domain.Task, err error) {
	if task.IsRoot() {
		subtasks, err = tx.GetChildren(task.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("get subtasks: %w", err)
		}
	}
	for _, id := range task.BlockerIDs {
		b, err := tx.Get(id)
		if err != nil {
			return nil, nil, fmt.Errorf("get blocker #%d: %w", id, err)
		}
		if b != nil {
			blockers = append(blockers, b)
		}
	}
	return subtasks, blockers, nil
}

// BlockerGraph builds the blocker graph of every stored task.
func BlockerGraph(tx domain.TaskReader) (*domain.BlockerGraph, error) {
	all, err := tx.List(domain.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return domain.NewBlockerGraph(all), nil
}
