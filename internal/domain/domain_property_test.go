package domain

import (
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"
)

var propStatuses = []Status{
	StatusTodo, StatusInProgress, StatusBlocked, StatusReview,
	StatusCompleted, StatusCanceled, StatusArchived,
}

// TestProperty_BlockerGraphStaysAcyclic applies random blocker additions,
// keeping only the accepted ones, and checks the graph never contains a cycle.
func TestProperty_BlockerGraphStaysAcyclic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "num_tasks")
		tasks := make([]*Task, n)
		for i := range tasks {
			tasks[i] = &Task{ID: i + 1}
		}
		g := NewBlockerGraph(tasks)

		ops := rapid.IntRange(0, 60).Draw(rt, "num_ops")
		for i := 0; i < ops; i++ {
			taskID := rapid.IntRange(1, n).Draw(rt, "task")
			blockerID := rapid.IntRange(1, n+1).Draw(rt, "blocker")
			before := g.clone()

			err := ValidateAddBlocker(taskID, blockerID, g)
			if err != nil {
				if !reflect.DeepEqual(before.blocks, g.blocks) {
					rt.Fatalf("rejected edge %d -> %d changed the graph", blockerID, taskID)
				}
				continue
			}
			g.addEdge(blockerID, taskID)
			if !g.IsAcyclic() {
				rt.Fatalf("accepted edge %d -> %d introduced a cycle", blockerID, taskID)
			}
		}
	})
}

// TestProperty_GateIffAllCompleted checks that completion succeeds exactly when
// every enforced subtask and blocker is COMPLETED.
func TestProperty_GateIffAllCompleted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		isSubtask := rapid.Bool().Draw(rt, "is_subtask")
		task := &Task{ID: 1, Status: rapid.SampledFrom(propStatuses).Draw(rt, "status")}
		if isSubtask {
			task.ParentID = intPtr(100)
		}
		settings := GateSettings{
			SubtasksEnabled: rapid.Bool().Draw(rt, "subtasks_enabled"),
			BlockersEnabled: rapid.Bool().Draw(rt, "blockers_enabled"),
		}

		draw := func(label string, first int) []*Task {
			k := rapid.IntRange(0, 5).Draw(rt, label)
			out := make([]*Task, k)
			for i := range out {
				out[i] = &Task{ID: first + i, Status: rapid.SampledFrom(propStatuses).Draw(rt, label+"_status")}
			}
			return out
		}
		subtasks := draw("num_subtasks", 10)
		blockers := draw("num_blockers", 20)

		want := true
		openSubtasks, openBlockers := 0, 0
		if !isSubtask && settings.SubtasksEnabled {
			for _, s := range subtasks {
				if s.Status != StatusCompleted {
					want = false
					openSubtasks++
				}
			}
		}
		if settings.BlockersEnabled {
			for _, b := range blockers {
				if b.Status != StatusCompleted {
					want = false
					openBlockers++
				}
			}
		}

		res := AttemptComplete(task, subtasks, blockers, settings, time.Unix(0, 0).UTC())
		if res.Accepted != want {
			rt.Fatalf("Accepted = %v, want %v", res.Accepted, want)
		}
		if len(res.Subtasks) != openSubtasks || len(res.Blockers) != openBlockers {
			rt.Fatalf("reported %d/%d open items, want %d/%d", len(res.Subtasks), len(res.Blockers), openSubtasks, openBlockers)
		}
		if res.Accepted && (res.Task.Status != StatusCompleted || res.Task.CompletedDate == nil) {
			rt.Fatalf("accepted task not completed: %+v", res.Task)
		}
	})
}

func drawTask(rt *rapid.T, label string) *Task {
	strs := rapid.SliceOfDistinct(rapid.SampledFrom([]string{"a", "b", "c", "d"}), rapid.ID[string])
	task := &Task{
		ID:              1,
		Title:           rapid.SampledFrom([]string{"Draft", "Final", "x"}).Draw(rt, label+"_title"),
		Description:     rapid.SampledFrom([]string{"", "desc"}).Draw(rt, label+"_desc"),
		Status:          rapid.SampledFrom(propStatuses).Draw(rt, label+"_status"),
		Priority:        rapid.SampledFrom([]Priority{PriorityNone, PriorityLow, PriorityHigh}).Draw(rt, label+"_priority"),
		BlockerIDs:      rapid.SliceOfDistinct(rapid.IntRange(2, 6), rapid.ID[int]).Draw(rt, label+"_blockers"),
		AssignedUserIDs: strs.Draw(rt, label+"_users"),
		TagIDs:          strs.Draw(rt, label+"_tags"),
	}
	if rapid.Bool().Draw(rt, label+"_has_due") {
		due := time.Unix(rapid.Int64Range(0, 1<<32).Draw(rt, label+"_due"), 0).UTC()
		task.DueDate = &due
	}
	task.Normalize()
	return task
}

// TestProperty_DiffMinimalAndReversible checks that a diff holds only changed
// fields and reconstructs both endpoints.
func TestProperty_DiffMinimalAndReversible(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		before := drawTask(rt, "before")
		after := drawTask(rt, "after")

		desc := Diff(before, after)
		for field, ch := range desc {
			if fieldEqual(ch.Old, ch.New) {
				rt.Fatalf("unchanged field %s in diff", field)
			}
		}
		for _, field := range DiffedFields {
			if _, ok := desc[field]; !ok && !fieldEqual(fieldValue(before, field), fieldValue(after, field)) {
				rt.Fatalf("changed field %s missing from diff", field)
			}
		}

		gotAfter := before.Clone()
		if err := desc.ApplyNew(gotAfter); err != nil {
			rt.Fatalf("ApplyNew: %v", err)
		}
		if len(Diff(gotAfter, after)) != 0 {
			rt.Fatalf("ApplyNew did not reconstruct after: %v", Diff(gotAfter, after))
		}
		gotBefore := after.Clone()
		if err := desc.ApplyOld(gotBefore); err != nil {
			rt.Fatalf("ApplyOld: %v", err)
		}
		if len(Diff(gotBefore, before)) != 0 {
			rt.Fatalf("ApplyOld did not reconstruct before: %v", Diff(gotBefore, before))
		}
	})
}

// TestProperty_ThreadReconstruction checks that every comment appears once,
// replies sit under their declared parent, and rebuilding is idempotent.
func TestProperty_ThreadReconstruction(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 25).Draw(rt, "num_comments")
		comments := make([]Comment, n)
		for i := range comments {
			comments[i] = Comment{ID: i + 1, TaskID: 1}
			if rapid.Bool().Draw(rt, "has_parent") {
				// Parents may be missing (n+5) or form cycles.
				comments[i].ParentCommentID = intPtr(rapid.IntRange(1, n+5).Draw(rt, "parent"))
			}
		}

		forest := BuildHierarchy(comments)

		flat := Flatten(forest)
		if len(flat) != n {
			rt.Fatalf("forest holds %d comments, want %d", len(flat), n)
		}
		seen := make(map[int]bool, n)
		for _, c := range flat {
			if seen[c.ID] {
				rt.Fatalf("comment %d appears twice", c.ID)
			}
			seen[c.ID] = true
		}

		stack := append([]*Comment(nil), forest...)
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, r := range c.Replies {
				if r.ParentCommentID == nil || *r.ParentCommentID != c.ID {
					rt.Fatalf("comment %d nested under %d", r.ID, c.ID)
				}
			}
			stack = append(stack, c.Replies...)
		}

		if again := BuildHierarchy(flat); !reflect.DeepEqual(again, forest) {
			rt.Fatalf("rebuilding from flattened output changed the forest")
		}
	})
}
