package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Domain errors.
var (
	ErrValidation         = errors.New("validation failed")
	ErrTaskNotFound       = errors.New("task not found")
	ErrParentNotFound     = errors.New("parent task not found")
	ErrBlockerNotFound    = errors.New("blocker task not found")
	ErrCommentNotFound    = errors.New("comment not found")
	ErrCrossTaskComment   = errors.New("parent comment belongs to another task")
	ErrCycle              = errors.New("blocker cycle detected")
	ErrSelfReference      = errors.New("task cannot reference itself")
	ErrDepth              = errors.New("subtasks cannot be nested more than one level")
	ErrConflict           = errors.New("concurrent modification, retry the operation")
	ErrNoChanges          = errors.New("no changes to record")
	ErrNoFieldsToUpdate   = errors.New("no fields to update")
	ErrEmptyTitle         = errors.New("title cannot be empty")
	ErrEmptyMessage       = errors.New("message cannot be empty")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrNotInitialized     = errors.New("store not initialized (run 'capsule init' first)")
	ErrCompletionRejected = errors.New("completion rejected")
)

// ValidationError reports a client mistake in a single input field.
// Err optionally names a more specific sentinel such as ErrEmptyTitle.
type ValidationError struct {
	Err    error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation and Err.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{e.Err, ErrValidation}
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NewFieldError creates a ValidationError for field that also matches err.
func NewFieldError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: err.Error(), Err: err}
}

// CycleError is returned when adding a blocker edge would close a cycle.
// Path lists the existing chain from TaskID to BlockerID.
type CycleError struct {
	Path      []int
	TaskID    int
	BlockerID int
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Path))
	for _, id := range e.Path {
		parts = append(parts, "#"+strconv.Itoa(id))
	}
	return fmt.Sprintf("blocker cycle detected: #%d cannot be blocked by #%d (existing chain %s)",
		e.TaskID, e.BlockerID, strings.Join(parts, " -> "))
}

// Unwrap lets errors.Is match ErrCycle.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// DepthError is returned when a parent assignment would nest subtasks two levels deep.
type DepthError struct {
	TaskID   int
	ParentID int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("subtasks cannot be nested more than one level: #%d cannot become a subtask of #%d", e.TaskID, e.ParentID)
}

// Unwrap lets errors.Is match ErrDepth.
func (e *DepthError) Unwrap() error {
	return ErrDepth
}

// CompletionRejectedError carries a gate refusal through code paths that can
// only return an error, such as a status update to COMPLETED.
type CompletionRejectedError struct {
	Result CompletionResult
}

func (e *CompletionRejectedError) Error() string {
	return fmt.Sprintf("completion rejected: %d open subtask(s), %d open blocker(s)",
		len(e.Result.Subtasks), len(e.Result.Blockers))
}

// Unwrap lets errors.Is match ErrCompletionRejected.
func (e *CompletionRejectedError) Unwrap() error {
	return ErrCompletionRejected
}

// IsGuardError reports whether err is a graph or hierarchy invariant violation.
func IsGuardError(err error) bool {
	return errors.Is(err, ErrCycle) || errors.Is(err, ErrSelfReference) ||
		errors.Is(err, ErrDepth) || errors.Is(err, ErrCrossTaskComment)
}

// IsNotFound reports whether err refers to a missing task, parent, blocker or comment.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrParentNotFound) ||
		errors.Is(err, ErrBlockerNotFound) || errors.Is(err, ErrCommentNotFound)
}

// IsValidation reports whether err is a client input mistake.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrEmptyTitle) ||
		errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidPriority) || errors.Is(err, ErrNoFieldsToUpdate)
}
