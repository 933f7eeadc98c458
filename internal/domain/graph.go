package domain

import "slices"

// BlockerGraph is a read-only view of the "blocks" relation over a task snapshot.
// An edge blocker -> task means blocker must complete before task.
// It is built per validation call and never cached.
type BlockerGraph struct {
	exists map[int]bool
	blocks map[int][]int // blocker id -> ids of tasks it blocks
}

// NewBlockerGraph builds the graph from the blocker sets of tasks.
func NewBlockerGraph(tasks []*Task) *BlockerGraph {
	g := &BlockerGraph{
		exists: make(map[int]bool, len(tasks)),
		blocks: make(map[int][]int),
	}
	for _, t := range tasks {
		g.exists[t.ID] = true
	}
	for _, t := range tasks {
		for _, b := range t.BlockerIDs {
			g.addEdge(b, t.ID)
		}
	}
	return g
}

// Has reports whether a task with the id is part of the snapshot.
func (g *BlockerGraph) Has(id int) bool {
	return g.exists[id]
}

func (g *BlockerGraph) addEdge(blockerID, taskID int) {
	if !slices.Contains(g.blocks[blockerID], taskID) {
		g.blocks[blockerID] = append(g.blocks[blockerID], taskID)
	}
}

// RemoveTask drops a task and all of its edges from the graph.
func (g *BlockerGraph) RemoveTask(id int) {
	delete(g.exists, id)
	delete(g.blocks, id)
	for b, targets := range g.blocks {
		g.blocks[b] = slices.DeleteFunc(targets, func(t int) bool { return t == id })
	}
}

// SetBlockers replaces the incoming edges of taskID.
func (g *BlockerGraph) SetBlockers(taskID int, blockerIDs []int) {
	for b, targets := range g.blocks {
		g.blocks[b] = slices.DeleteFunc(targets, func(t int) bool { return t == taskID })
	}
	for _, b := range blockerIDs {
		g.addEdge(b, taskID)
	}
}

// path returns the chain of "blocks" edges from -> ... -> to, or nil when to
// is unreachable. Breadth-first with an explicit queue.
func (g *BlockerGraph) path(from, to int) []int {
	if from == to {
		return []int{from}
	}
	prev := map[int]int{from: from}
	queue := []int{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.blocks[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				return unwindPath(prev, from, to)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func unwindPath(prev map[int]int, from, to int) []int {
	out := []int{to}
	for cur := to; cur != from; {
		cur = prev[cur]
		out = append(out, cur)
	}
	slices.Reverse(out)
	return out
}

// ValidateAddBlocker checks that blockerID may become a blocker of taskID.
// It rejects self-reference, unknown blockers, and any edge that would close a
// cycle, i.e. when taskID already (transitively) blocks blockerID.
func ValidateAddBlocker(taskID, blockerID int, g *BlockerGraph) error {
	if taskID == blockerID {
		return ErrSelfReference
	}
	if !g.Has(blockerID) {
		return ErrBlockerNotFound
	}
	if p := g.path(taskID, blockerID); p != nil {
		return &CycleError{TaskID: taskID, BlockerID: blockerID, Path: p}
	}
	return nil
}

// ValidateBlockerSet checks a full replacement blocker set for taskID. Edges are
// validated one at a time against the graph extended with the edges accepted so
// far, so a set that is only cyclic in combination is also rejected.
// The graph is not modified.
func ValidateBlockerSet(taskID int, blockerIDs []int, g *BlockerGraph) error {
	work := g.clone()
	work.SetBlockers(taskID, nil)
	for _, b := range NormalizeIDs(blockerIDs) {
		if err := ValidateAddBlocker(taskID, b, work); err != nil {
			return err
		}
		work.addEdge(b, taskID)
	}
	return nil
}

func (g *BlockerGraph) clone() *BlockerGraph {
	c := &BlockerGraph{
		exists: make(map[int]bool, len(g.exists)),
		blocks: make(map[int][]int, len(g.blocks)),
	}
	for id := range g.exists {
		c.exists[id] = true
	}
	for b, targets := range g.blocks {
		c.blocks[b] = slices.Clone(targets)
	}
	return c
}

// IsAcyclic reports whether the graph contains no cycle (Kahn's algorithm).
func (g *BlockerGraph) IsAcyclic() bool {
	indegree := make(map[int]int, len(g.exists))
	for id := range g.exists {
		indegree[id] += 0
	}
	for b, targets := range g.blocks {
		indegree[b] += 0
		for _, t := range targets {
			indegree[t]++
		}
	}
	queue := make([]int, 0, len(indegree))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, t := range g.blocks[cur] {
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	return visited == len(indegree)
}

// ValidateParentAssignment checks that taskID may become a subtask of parent.
// parent is nil when the referenced parent does not exist. hasChildren tells
// whether taskID already owns subtasks, which would also create a second level.
func ValidateParentAssignment(taskID int, parent *Task, hasChildren bool) error {
	if parent == nil {
		return ErrParentNotFound
	}
	if parent.ID == taskID {
		return ErrSelfReference
	}
	if parent.ParentID != nil || hasChildren {
		return &DepthError{TaskID: taskID, ParentID: parent.ID}
	}
	return nil
}
