package domain

import "time"

// GateSettings toggles the completion rules for one organization.
type GateSettings struct {
	SubtasksEnabled bool `json:"subtasksEnabled" toml:"subtasks_enabled" yaml:"subtasksEnabled"`
	BlockersEnabled bool `json:"blockersEnabled" toml:"blockers_enabled" yaml:"blockersEnabled"`
}

// DefaultGateSettings returns settings with both rules enforced.
func DefaultGateSettings() GateSettings {
	return GateSettings{SubtasksEnabled: true, BlockersEnabled: true}
}

// BlockingItem describes a task that prevents a completion.
type BlockingItem struct {
	Title  string `json:"title" yaml:"title"`
	Status Status `json:"status" yaml:"status"`
	ID     int    `json:"id" yaml:"id"`
}

func newBlockingItem(t *Task) BlockingItem {
	return BlockingItem{ID: t.ID, Title: t.Title, Status: t.Status}
}

// CompletionResult is the outcome of a completion attempt.
// On acceptance Task holds the completed copy; on refusal Task is nil and
// Subtasks / Blockers list every open item.
type CompletionResult struct {
	Task     *Task          `json:"task,omitempty" yaml:"task,omitempty"`
	Subtasks []BlockingItem `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`
	Blockers []BlockingItem `json:"blockers,omitempty" yaml:"blockers,omitempty"`
	Accepted bool           `json:"success" yaml:"success"`
}

// AttemptComplete decides whether task may move to COMPLETED.
//
// Top-level tasks need every subtask COMPLETED when subtasks are enabled.
// Every task needs every blocker COMPLETED when blockers are enabled.
// All violations are collected. task is never modified.
func AttemptComplete(task *Task, subtasks, blockers []*Task, settings GateSettings, now time.Time) CompletionResult {
	var res CompletionResult
	if task.IsRoot() && settings.SubtasksEnabled {
		for _, st := range subtasks {
			if !st.IsCompleted() {
				res.Subtasks = append(res.Subtasks, newBlockingItem(st))
			}
		}
	}
	if settings.BlockersEnabled {
		for _, b := range blockers {
			if !b.IsCompleted() {
				res.Blockers = append(res.Blockers, newBlockingItem(b))
			}
		}
	}
	if len(res.Subtasks) > 0 || len(res.Blockers) > 0 {
		return res
	}

	done := task.Clone()
	if !task.IsCompleted() || task.CompletedDate == nil {
		done.Status = StatusCompleted
		completed := now
		done.CompletedDate = &completed
		done.Updated = now
	}
	res.Accepted = true
	res.Task = done
	return res
}

// Uncomplete moves task out of COMPLETED. It is always accepted.
// An empty target status defaults to TO_DO. A task that is not COMPLETED is
// returned unchanged.
func Uncomplete(task *Task, target Status, now time.Time) *Task {
	out := task.Clone()
	if !task.IsCompleted() {
		return out
	}
	if target == "" || target == StatusCompleted {
		target = StatusTodo
	}
	out.Status = target
	out.CompletedDate = nil
	out.Updated = now
	return out
}

// ApplyStatus performs a status transition, routing moves into COMPLETED
// through the gate. Leaving COMPLETED clears CompletedDate; open to open
// moves are unguarded. A refusal is returned as *CompletionRejectedError.
func ApplyStatus(task *Task, status Status, subtasks, blockers []*Task, settings GateSettings, now time.Time) (*Task, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	switch {
	case status == task.Status:
		return task.Clone(), nil
	case status == StatusCompleted:
		res := AttemptComplete(task, subtasks, blockers, settings, now)
		if !res.Accepted {
			return nil, &CompletionRejectedError{Result: res}
		}
		return res.Task, nil
	case task.IsCompleted():
		return Uncomplete(task, status, now), nil
	default:
		out := task.Clone()
		out.Status = status
		out.Updated = now
		return out, nil
	}
}
