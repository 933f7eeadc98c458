package domain

import "strings"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusBacklog             Status = "BACKLOG"
	StatusTodo                Status = "TO_DO"
	StatusInProgress          Status = "IN_PROGRESS"
	StatusHighPriority        Status = "HIGH_PRIORITY"
	StatusReview              Status = "REVIEW"
	StatusInTesting           Status = "IN_TESTING"
	StatusNeedsRevision       Status = "NEEDS_REVISION"
	StatusBlocked             Status = "BLOCKED"
	StatusOnHold              Status = "ON_HOLD"
	StatusPendingDependencies Status = "PENDING_DEPENDENCIES"
	StatusPreparing           Status = "PREPARING"
	StatusScheduled           Status = "SCHEDULED"
	StatusWaitingForFeedback  Status = "WAITING_FOR_FEEDBACK"
	StatusReadyForRelease     Status = "READY_FOR_RELEASE"
	StatusCompleted           Status = "COMPLETED"
	StatusCanceled            Status = "CANCELED"
	StatusDeferred            Status = "DEFERRED"
	StatusArchived            Status = "ARCHIVED"
)

// statusLabels maps each status to its dashboard label.
// Order matches AllStatuses.
var statusLabels = []struct {
	status Status
	label  string
}{
	{StatusBacklog, "Backlog"},
	{StatusTodo, "To Do"},
	{StatusInProgress, "In Progress"},
	{StatusHighPriority, "In Progress - High Priority"},
	{StatusReview, "Review/Approval"},
	{StatusInTesting, "In Testing"},
	{StatusNeedsRevision, "Needs Revision"},
	{StatusBlocked, "Blocked"},
	{StatusOnHold, "On Hold"},
	{StatusPendingDependencies, "Pending Dependencies"},
	{StatusPreparing, "Preparing"},
	{StatusScheduled, "Scheduled"},
	{StatusWaitingForFeedback, "Waiting for Feedback"},
	{StatusReadyForRelease, "Ready for Release"},
	{StatusCompleted, "Completed"},
	{StatusCanceled, "Canceled"},
	{StatusDeferred, "Deferred"},
	{StatusArchived, "Archived"},
}

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	out := make([]Status, 0, len(statusLabels))
	for _, sl := range statusLabels {
		out = append(out, sl.status)
	}
	return out
}

// ParseStatus converts a canonical name or a dashboard label into a Status.
// Matching is case-insensitive, and spaces, dashes and slashes are treated
// like underscores, so "Completed", "completed" and "COMPLETED" are equal.
func ParseStatus(s string) (Status, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrInvalidStatus
	}
	for _, sl := range statusLabels {
		if strings.EqualFold(trimmed, sl.label) || strings.EqualFold(trimmed, string(sl.status)) {
			return sl.status, nil
		}
	}
	key := normalizeStatusKey(trimmed)
	for _, sl := range statusLabels {
		if key == string(sl.status) {
			return sl.status, nil
		}
	}
	return "", ErrInvalidStatus
}

func normalizeStatusKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/':
			return '_'
		}
		return r
	}, strings.ToUpper(s))
}

// IsValid returns true if the status is a known canonical value.
func (s Status) IsValid() bool {
	for _, sl := range statusLabels {
		if sl.status == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses the gate treats as finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusArchived
}

// IsOpen returns true for any valid non-terminal status.
func (s Status) IsOpen() bool {
	return s.IsValid() && !s.IsTerminal()
}

// Display returns a human-readable representation of the status.
func (s Status) Display() string {
	for _, sl := range statusLabels {
		if sl.status == s {
			return sl.label
		}
	}
	return string(s)
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityNone     Priority = ""
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ParsePriority converts a priority name, in any case, into a Priority.
// The empty string yields PriorityNone.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", ErrInvalidPriority
	}
	return p, nil
}

// IsValid returns true if the priority is known or unset.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}
