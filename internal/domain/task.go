// Package domain contains core business entities and interfaces.
package domain

import (
	"slices"
	"time"
)

// Task represents a unit of work inside a capsule.
// Fields are ordered to minimize memory padding.
type Task struct {
	Created         time.Time  `json:"created" yaml:"created"`
	Updated         time.Time  `json:"updated" yaml:"updated"`
	ParentID        *int       `json:"parentId" yaml:"parentId"`                                       // Parent task ID (nil = top-level task)
	StartDate       *time.Time `json:"startDate,omitempty" yaml:"startDate,omitempty"`                 // Planned start
	DueDate         *time.Time `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`                     // Planned end
	CompletedDate   *time.Time `json:"completedDate,omitempty" yaml:"completedDate,omitempty"`         // Set exactly while status is COMPLETED
	Title           string     `json:"title" yaml:"title"`                                             // Title (required)
	Description     string     `json:"description" yaml:"description"`                                 // Rich text, opaque
	Status          Status     `json:"status" yaml:"status"`                                           // Current status
	Priority        Priority   `json:"priority,omitempty" yaml:"priority,omitempty"`                   // Optional priority
	BlockerIDs      []int      `json:"blockerIds" yaml:"blockerIds"`                                   // Tasks that must complete first
	AssignedUserIDs []string   `json:"assignedUserIds" yaml:"assignedUserIds"`                         // External user ids
	TagIDs          []string   `json:"tagIds" yaml:"tagIds"`                                           // External tag ids
	ID              int        `json:"id" yaml:"id"`                                                   // Task ID
	CapsuleID       int        `json:"capsuleId" yaml:"capsuleId"`                                     // Owning capsule
	Progress        int        `json:"progress" yaml:"progress"`                                       // 0-100, informative only
}

// IsRoot returns true if this is a top-level task (no parent).
func (t *Task) IsRoot() bool {
	return t.ParentID == nil
}

// IsCompleted returns true if the task status is COMPLETED.
func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// HasBlocker reports whether id is in the task's blocker set.
func (t *Task) HasBlocker(id int) bool {
	return slices.Contains(t.BlockerIDs, id)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.ParentID = cloneIntPtr(t.ParentID)
	c.StartDate = cloneTimePtr(t.StartDate)
	c.DueDate = cloneTimePtr(t.DueDate)
	c.CompletedDate = cloneTimePtr(t.CompletedDate)
	c.BlockerIDs = slices.Clone(t.BlockerIDs)
	c.AssignedUserIDs = slices.Clone(t.AssignedUserIDs)
	c.TagIDs = slices.Clone(t.TagIDs)
	return &c
}

// Normalize sorts and de-duplicates the set-valued fields and replaces nil
// sets with empty ones so that persisted and diffed forms are stable.
func (t *Task) Normalize() {
	t.BlockerIDs = NormalizeIDs(t.BlockerIDs)
	t.AssignedUserIDs = NormalizeStrings(t.AssignedUserIDs)
	t.TagIDs = NormalizeStrings(t.TagIDs)
}

// NormalizeIDs returns a sorted copy of ids without duplicates. Never nil.
func NormalizeIDs(ids []int) []int {
	out := slices.Clone(ids)
	if out == nil {
		out = []int{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// NormalizeStrings returns a sorted copy of ss without duplicates or empty values. Never nil.
func NormalizeStrings(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Comment represents a note attached to a task, optionally replying to another comment.
// Fields are ordered to minimize memory padding.
type Comment struct {
	CreatedAt       time.Time  `json:"createdAt" yaml:"createdAt"`
	ParentCommentID *int       `json:"parentCommentId,omitempty" yaml:"parentCommentId,omitempty"` // Parent comment (nil = top-level)
	AuthorID        string     `json:"authorId" yaml:"authorId"`                                   // External user id
	Text            string     `json:"text" yaml:"text"`                                           // Rich text, opaque
	Replies         []*Comment `json:"replies,omitempty" yaml:"-"`                                 // Populated by BuildHierarchy only
	ID              int        `json:"id" yaml:"id"`
	TaskID          int        `json:"taskId" yaml:"taskId"`
}

// IsReply returns true if the comment has a parent comment.
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil
}

// TaskFilter specifies criteria for listing tasks.
// Fields are ordered to minimize memory padding.
type TaskFilter struct {
	ParentID  *int   // nil = all tasks, set = only children of this parent
	Status    Status // empty = any status
	CapsuleID int    // 0 = any capsule
	RootsOnly bool   // only tasks without a parent
}

// Matches reports whether the task satisfies the filter.
func (f TaskFilter) Matches(t *Task) bool {
	if f.CapsuleID != 0 && t.CapsuleID != f.CapsuleID {
		return false
	}
	if f.ParentID != nil && (t.ParentID == nil || *t.ParentID != *f.ParentID) {
		return false
	}
	if f.RootsOnly && t.ParentID != nil {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
