package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/runoshun/capsule/internal/domain"
)

// DescribedEntry is a history entry rendered for people.
type DescribedEntry struct {
	Entry domain.TaskHistory
	Actor string   // Actor name, or id when unknown
	Lines []string // One line per changed field
}

// DescribeChange renders history entries with user and tag names resolved
// through the directories.
type DescribeChange struct {
	users domain.UserDirectory
	tags  domain.TagDirectory
}

// NewDescribeChange creates a new DescribeChange use case.
func NewDescribeChange(users domain.UserDirectory, tags domain.TagDirectory) *DescribeChange {
	return &DescribeChange{users: users, tags: tags}
}

// Execute describes each entry. Unknown ids are shown as they are.
func (uc *DescribeChange) Execute(ctx context.Context, entries []domain.TaskHistory) ([]DescribedEntry, error) {
	out := make([]DescribedEntry, 0, len(entries))
	for _, e := range entries {
		actor, err := uc.userName(ctx, e.UserID)
		if err != nil {
			return nil, err
		}
		d := DescribedEntry{Entry: e, Actor: actor}
		for _, field := range e.ChangeDescription.Fields() {
			line, err := uc.describeField(ctx, field, e.ChangeDescription[field])
			if err != nil {
				return nil, fmt.Errorf("describe %s of entry %d: %w", field, e.ID, err)
			}
			d.Lines = append(d.Lines, line)
		}
		out = append(out, d)
	}
	return out, nil
}

func (uc *DescribeChange) describeField(ctx context.Context, field string, ch domain.FieldChange) (string, error) {
	switch field {
	case domain.FieldStatus:
		return fmt.Sprintf("status: %s -> %s", statusLabel(ch.Old), statusLabel(ch.New)), nil
	case domain.FieldBlockerIDs:
		oldIDs, err := domain.AsIDSet(ch.Old)
		if err != nil {
			return "", err
		}
		newIDs, err := domain.AsIDSet(ch.New)
		if err != nil {
			return "", err
		}
		added, removed := setDelta(oldIDs, newIDs)
		return "blockers: " + joinDelta(mapIDs(added, domain.TaskRef), mapIDs(removed, domain.TaskRef)), nil
	case domain.FieldAssignedUserIDs:
		return uc.describeNames(ctx, "assignees", ch, uc.userName)
	case domain.FieldTagIDs:
		return uc.describeNames(ctx, "tags", ch, uc.tagName)
	case domain.FieldCommentID:
		return fmt.Sprintf("comment: #%v", ch.New), nil
	case domain.FieldFile:
		return fmt.Sprintf("file: %v", ch.New), nil
	default:
		return fmt.Sprintf("%s: %s -> %s", field, scalar(ch.Old), scalar(ch.New)), nil
	}
}

func (uc *DescribeChange) describeNames(ctx context.Context, label string, ch domain.FieldChange,
	name func(context.Context, string) (string, error)) (string, error) {
	oldIDs, err := domain.AsStringSet(ch.Old)
	if err != nil {
		return "", err
	}
	newIDs, err := domain.AsStringSet(ch.New)
	if err != nil {
		return "", err
	}
	added, removed := setDelta(oldIDs, newIDs)
	resolve := func(ids []string) ([]string, error) {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			n, err := name(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	addedNames, err := resolve(added)
	if err != nil {
		return "", err
	}
	removedNames, err := resolve(removed)
	if err != nil {
		return "", err
	}
	return label + ": " + joinDelta(addedNames, removedNames), nil
}

func (uc *DescribeChange) userName(ctx context.Context, id string) (string, error) {
	if id == "" || uc.users == nil {
		return id, nil
	}
	u, err := uc.users.GetUser(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get user %s: %w", id, err)
	}
	if u == nil || u.Name == "" {
		return id, nil
	}
	return u.Name, nil
}

func (uc *DescribeChange) tagName(ctx context.Context, id string) (string, error) {
	if uc.tags == nil {
		return id, nil
	}
	t, err := uc.tags.GetTag(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get tag %s: %w", id, err)
	}
	if t == nil || t.Name == "" {
		return id, nil
	}
	return t.Name, nil
}

func setDelta[T comparable](before, after []T) (added, removed []T) {
	for _, v := range after {
		if !slices.Contains(before, v) {
			added = append(added, v)
		}
	}
	for _, v := range before {
		if !slices.Contains(after, v) {
			removed = append(removed, v)
		}
	}
	return added, removed
}

func joinDelta(added, removed []string) string {
	parts := make([]string, 0, len(added)+len(removed))
	for _, a := range added {
		parts = append(parts, "+"+a)
	}
	for _, r := range removed {
		parts = append(parts, "-"+r)
	}
	if len(parts) == 0 {
		return "(unchanged)"
	}
	return strings.Join(parts, " ")
}

func mapIDs(ids []int, f func(int) string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, f(id))
	}
	return out
}

func statusLabel(v any) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return "(none)"
	}
	return domain.Status(s).Display()
}

func scalar(v any) string {
	switch s := v.(type) {
	case nil:
		return "(none)"
	case string:
		if s == "" {
			return "(none)"
		}
		return fmt.Sprintf("%q", s)
	default:
		return fmt.Sprint(v)
	}
}
