package domain

import "slices"

// Clone returns a copy of the comment without its replies.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	out := *c
	out.ParentCommentID = cloneIntPtr(c.ParentCommentID)
	out.Replies = nil
	return &out
}

// BuildHierarchy turns a flat comment list into a forest of reply trees.
//
// Comments whose parent is absent from the list become roots, as does any
// comment whose ancestor chain loops back on itself. Siblings are ordered by
// creation time, then ID. The input is not modified and every comment appears
// exactly once in the output.
func BuildHierarchy(comments []Comment) []*Comment {
	index := make(map[int]*Comment, len(comments))
	nodes := make([]*Comment, 0, len(comments))
	for i := range comments {
		if _, dup := index[comments[i].ID]; dup {
			continue
		}
		c := comments[i].Clone()
		c.Replies = []*Comment{}
		index[c.ID] = c
		nodes = append(nodes, c)
	}

	parents := effectiveParents(nodes, index)
	roots := make([]*Comment, 0)
	for _, c := range nodes {
		parent := parents[c.ID]
		if parent == nil {
			roots = append(roots, c)
			continue
		}
		parent.Replies = append(parent.Replies, c)
	}

	sortThread(roots)
	return roots
}

// effectiveParents maps each comment ID to the comment it is nested under, or
// nil when it must be a root: no parent, a missing parent, or being the lowest
// ID of a parent cycle. Breaking every cycle at its lowest ID leaves the
// remaining parent links acyclic. Every comment is walked once.
func effectiveParents(nodes []*Comment, index map[int]*Comment) map[int]*Comment {
	direct := func(c *Comment) *Comment {
		if c.ParentCommentID == nil {
			return nil
		}
		p, ok := index[*c.ParentCommentID]
		if !ok || p.ID == c.ID {
			return nil
		}
		return p
	}

	parents := make(map[int]*Comment, len(nodes))
	resolved := make(map[int]bool, len(nodes))
	onPath := make(map[int]int) // ID -> position in path
	var path []*Comment
	for _, start := range nodes {
		if resolved[start.ID] {
			continue
		}
		path = path[:0]
		cycleAt := -1
		for cur := start; cur != nil && !resolved[cur.ID]; cur = direct(cur) {
			if pos, ok := onPath[cur.ID]; ok {
				cycleAt = pos
				break
			}
			onPath[cur.ID] = len(path)
			path = append(path, cur)
		}

		lowest := -1
		if cycleAt >= 0 {
			lowest = path[cycleAt].ID
			for _, c := range path[cycleAt:] {
				lowest = min(lowest, c.ID)
			}
		}
		for _, c := range path {
			if c.ID != lowest {
				parents[c.ID] = direct(c)
			}
			resolved[c.ID] = true
			delete(onPath, c.ID)
		}
	}
	return parents
}

func sortThread(roots []*Comment) {
	stack := [][]*Comment{roots}
	for len(stack) > 0 {
		level := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		slices.SortFunc(level, compareComments)
		for _, c := range level {
			if len(c.Replies) > 0 {
				stack = append(stack, c.Replies)
			}
		}
	}
}

func compareComments(a, b *Comment) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return a.ID - b.ID
}

// Flatten walks a forest in pre-order and returns plain comment copies.
func Flatten(forest []*Comment) []Comment {
	var out []Comment
	stack := make([]*Comment, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, forest[i])
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, *c.Clone())
		for i := len(c.Replies) - 1; i >= 0; i-- {
			stack = append(stack, c.Replies[i])
		}
	}
	return out
}

// CountComments returns the number of comments in a forest.
func CountComments(forest []*Comment) int {
	n := 0
	stack := slices.Clone(forest)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		stack = append(stack, c.Replies...)
	}
	return n
}

// ValidateNewComment checks the placement of a new comment on taskID.
// parent is the looked-up parent comment, or nil when it does not exist.
func ValidateNewComment(taskID int, parent *Comment) error {
	if parent == nil {
		return ErrCommentNotFound
	}
	if parent.TaskID != taskID {
		return ErrCrossTaskComment
	}
	return nil
}
