package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// ChangeType is the kind of mutation a history entry records.
type ChangeType string

const (
	ChangeCreated              ChangeType = "created"
	ChangeUpdated              ChangeType = "updated"
	ChangeDeleted              ChangeType = "deleted"
	ChangeCompleted            ChangeType = "completed"
	ChangeStatusChanged        ChangeType = "statusChanged"
	ChangeCommentAdded         ChangeType = "commentAdded"
	ChangeFileAttached         ChangeType = "fileAttached"
	ChangeAssignedUsersChanged ChangeType = "assignedUsersChanged"
	ChangeOther                ChangeType = "other"
)

// IsValid returns true if the change type is known.
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeCreated, ChangeUpdated, ChangeDeleted, ChangeCompleted, ChangeStatusChanged,
		ChangeCommentAdded, ChangeFileAttached, ChangeAssignedUsersChanged, ChangeOther:
		return true
	default:
		return false
	}
}

// Diffed task fields, as they appear in a ChangeDescription.
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldStatus          = "status"
	FieldPriority        = "priority"
	FieldAssignedUserIDs = "assignedUserIds"
	FieldBlockerIDs      = "blockerIds"
	FieldTagIDs          = "tagIds"
	FieldStartDate       = "startDate"
	FieldDueDate         = "dueDate"

	// Event payload fields (not task fields).
	FieldCommentID = "commentId"
	FieldFile      = "file"
)

// DiffedFields lists the task fields the recorder compares, in payload order.
var DiffedFields = []string{
	FieldTitle, FieldDescription, FieldStatus, FieldPriority,
	FieldAssignedUserIDs, FieldBlockerIDs, FieldTagIDs,
	FieldStartDate, FieldDueDate,
}

// FieldChange holds both endpoints of one changed field.
// Scalars are strings (or nil); sets are []int / []string.
type FieldChange struct {
	Old any `json:"old" yaml:"old"`
	New any `json:"new" yaml:"new"`
}

// ChangeDescription maps a field name to its change. Unchanged fields are absent.
type ChangeDescription map[string]FieldChange

// TaskHistory is an immutable audit record of one accepted mutation.
// Fields are ordered to minimize memory padding.
type TaskHistory struct {
	Timestamp         time.Time         `json:"timestamp" yaml:"timestamp"`
	ChangeDescription ChangeDescription `json:"changeDescription" yaml:"changeDescription"`
	UserID            string            `json:"userId" yaml:"userId"`
	ChangeType        ChangeType        `json:"changeType" yaml:"changeType"`
	ID                int               `json:"id" yaml:"id"`
	TaskID            int               `json:"taskId" yaml:"taskId"`
}

// RecordChange builds the history entry for a mutation of a task.
// For ChangeCreated before must be nil and the payload holds every initial value;
// for ChangeDeleted after must be nil and the payload holds the final values.
// Any other change type yields a minimal diff, or ErrNoChanges when nothing differs.
// The entry ID is assigned by the repository on append.
func RecordChange(before, after *Task, actorID string, changeType ChangeType, now time.Time) (*TaskHistory, error) {
	var desc ChangeDescription
	var taskID int
	switch {
	case before == nil && after == nil:
		return nil, NewValidationError("task", "before and after cannot both be empty")
	case before == nil:
		taskID = after.ID
		desc = snapshotFields(after, false)
	case after == nil:
		taskID = before.ID
		desc = snapshotFields(before, true)
	default:
		taskID = after.ID
		desc = Diff(before, after)
		if len(desc) == 0 {
			return nil, ErrNoChanges
		}
	}
	if changeType == "" {
		changeType = ClassifyChange(before, after, desc)
	}
	return &TaskHistory{
		TaskID:            taskID,
		UserID:            actorID,
		Timestamp:         now,
		ChangeType:        changeType,
		ChangeDescription: desc,
	}, nil
}

// NewEventEntry builds a history entry that is not a task diff, such as a
// comment or an attachment reference.
func NewEventEntry(taskID int, actorID string, changeType ChangeType, desc ChangeDescription, now time.Time) *TaskHistory {
	if desc == nil {
		desc = ChangeDescription{}
	}
	return &TaskHistory{
		TaskID:            taskID,
		UserID:            actorID,
		Timestamp:         now,
		ChangeType:        changeType,
		ChangeDescription: desc,
	}
}

// ClassifyChange picks the most specific change type for a diff.
func ClassifyChange(before, after *Task, desc ChangeDescription) ChangeType {
	switch {
	case before == nil:
		return ChangeCreated
	case after == nil:
		return ChangeDeleted
	}
	if _, ok := desc[FieldStatus]; ok {
		if after.Status == StatusCompleted && before.Status != StatusCompleted {
			return ChangeCompleted
		}
		if len(desc) == 1 {
			return ChangeStatusChanged
		}
	}
	if _, ok := desc[FieldAssignedUserIDs]; ok && len(desc) == 1 {
		return ChangeAssignedUsersChanged
	}
	return ChangeUpdated
}

// Diff returns the minimal field-level difference between two task states.
func Diff(before, after *Task) ChangeDescription {
	desc := ChangeDescription{}
	for _, field := range DiffedFields {
		oldV, newV := fieldValue(before, field), fieldValue(after, field)
		if !fieldEqual(oldV, newV) {
			desc[field] = FieldChange{Old: oldV, New: newV}
		}
	}
	return desc
}

func snapshotFields(t *Task, deleted bool) ChangeDescription {
	desc := ChangeDescription{}
	for _, field := range DiffedFields {
		v := fieldValue(t, field)
		absent := emptyFor(field)
		if deleted {
			desc[field] = FieldChange{Old: v, New: absent}
		} else {
			desc[field] = FieldChange{Old: absent, New: v}
		}
	}
	return desc
}

// emptyFor returns the value used for the missing side of a created or
// deleted entry: an empty set for set fields, nil for scalars.
func emptyFor(field string) any {
	switch field {
	case FieldBlockerIDs:
		return []int{}
	case FieldAssignedUserIDs, FieldTagIDs:
		return []string{}
	default:
		return nil
	}
}

func fieldValue(t *Task, field string) any {
	switch field {
	case FieldTitle:
		return t.Title
	case FieldDescription:
		return t.Description
	case FieldStatus:
		return string(t.Status)
	case FieldPriority:
		return string(t.Priority)
	case FieldAssignedUserIDs:
		return NormalizeStrings(t.AssignedUserIDs)
	case FieldBlockerIDs:
		return NormalizeIDs(t.BlockerIDs)
	case FieldTagIDs:
		return NormalizeStrings(t.TagIDs)
	case FieldStartDate:
		return timeValue(t.StartDate)
	case FieldDueDate:
		return timeValue(t.DueDate)
	default:
		return nil
	}
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func fieldEqual(a, b any) bool {
	switch av := a.(type) {
	case []int:
		bv, ok := b.([]int)
		return ok && slices.Equal(av, bv)
	case []string:
		bv, ok := b.([]string)
		return ok && slices.Equal(av, bv)
	default:
		return a == b
	}
}

// ApplyNew overwrites the diffed fields of t with the New side of the description.
func (d ChangeDescription) ApplyNew(t *Task) error {
	return d.apply(t, false)
}

// ApplyOld overwrites the diffed fields of t with the Old side of the description.
func (d ChangeDescription) ApplyOld(t *Task) error {
	return d.apply(t, true)
}

func (d ChangeDescription) apply(t *Task, old bool) error {
	for field, ch := range d {
		v := ch.New
		if old {
			v = ch.Old
		}
		if err := setField(t, field, v); err != nil {
			return fmt.Errorf("apply %s: %w", field, err)
		}
	}
	return nil
}

// Fields returns the changed field names: task fields in payload order,
// then any event fields sorted by name.
func (d ChangeDescription) Fields() []string {
	out := make([]string, 0, len(d))
	var extra []string
	for _, f := range DiffedFields {
		if _, ok := d[f]; ok {
			out = append(out, f)
		}
	}
	for f := range d {
		if !slices.Contains(DiffedFields, f) {
			extra = append(extra, f)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

func setField(t *Task, field string, v any) error {
	switch field {
	case FieldTitle:
		s, err := asString(v)
		t.Title = s
		return err
	case FieldDescription:
		s, err := asString(v)
		t.Description = s
		return err
	case FieldStatus:
		s, err := asString(v)
		t.Status = Status(s)
		return err
	case FieldPriority:
		s, err := asString(v)
		t.Priority = Priority(s)
		return err
	case FieldAssignedUserIDs:
		ss, err := AsStringSet(v)
		t.AssignedUserIDs = ss
		return err
	case FieldBlockerIDs:
		ids, err := AsIDSet(v)
		t.BlockerIDs = ids
		return err
	case FieldTagIDs:
		ss, err := AsStringSet(v)
		t.TagIDs = ss
		return err
	case FieldStartDate:
		tp, err := asTime(v)
		t.StartDate = tp
		return err
	case FieldDueDate:
		tp, err := asTime(v)
		t.DueDate = tp
		return err
	default:
		return nil
	}
}

func asString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func asTime(v any) (*time.Time, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &s, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	default:
		return nil, fmt.Errorf("expected timestamp, got %T", v)
	}
}

// AsIDSet converts a decoded set value ([]int, or []any of JSON/YAML numbers)
// into a normalized id set.
func AsIDSet(v any) ([]int, error) {
	switch s := v.(type) {
	case nil:
		return []int{}, nil
	case []int:
		return NormalizeIDs(s), nil
	case []any:
		ids := make([]int, 0, len(s))
		for _, item := range s {
			id, err := asInt(item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return NormalizeIDs(ids), nil
	default:
		return nil, fmt.Errorf("expected id set, got %T", v)
	}
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// AsStringSet converts a decoded set value ([]string or []any) into a
// normalized string set.
func AsStringSet(v any) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return NormalizeStrings(s), nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, str)
		}
		return NormalizeStrings(out), nil
	default:
		return nil, fmt.Errorf("expected string set, got %T", v)
	}
}

// SortHistory orders entries oldest first; ties are broken by ID.
func SortHistory(entries []TaskHistory) {
	slices.SortStableFunc(entries, func(a, b TaskHistory) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return a.ID - b.ID
	})
}

// NormalizeDescription converts decoded set values back into typed slices so a
// description read from storage compares equal to the one that was written.
func NormalizeDescription(d ChangeDescription) (ChangeDescription, error) {
	out := make(ChangeDescription, len(d))
	for field, ch := range d {
		switch field {
		case FieldBlockerIDs:
			o, err := AsIDSet(ch.Old)
			if err != nil {
				return nil, err
			}
			n, err := AsIDSet(ch.New)
			if err != nil {
				return nil, err
			}
			ch = FieldChange{Old: o, New: n}
		case FieldAssignedUserIDs, FieldTagIDs:
			o, err := AsStringSet(ch.Old)
			if err != nil {
				return nil, err
			}
			n, err := AsStringSet(ch.New)
			if err != nil {
				return nil, err
			}
			ch = FieldChange{Old: o, New: n}
		case FieldCommentID:
			if ch.New != nil {
				id, err := asInt(ch.New)
				if err != nil {
					return nil, err
				}
				ch.New = id
			}
		}
		out[field] = ch
	}
	return out, nil
}
