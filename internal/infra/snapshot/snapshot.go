// Package snapshot provides the in-memory store model shared by the file-backed
// task repositories. A store decodes a Data value at the start of a
// transaction, hands a Tx to the caller, and persists the Data only when the
// transaction succeeds.
package snapshot

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/runoshun/capsule/internal/domain"
)

// SchemaVersion is the current on-disk layout version.
const SchemaVersion = 1

// Data represents the complete persisted state.
// Fields are ordered to minimize memory padding.
type Data struct {
	Tasks    map[string]*domain.Task    `json:"tasks" yaml:"tasks"`
	Comments map[string][]domain.Comment `json:"comments" yaml:"comments"`
	History  []domain.TaskHistory        `json:"history" yaml:"history"`
	Meta     Meta                        `json:"meta" yaml:"meta"`
}

// Meta contains store metadata.
type Meta struct {
	NextTaskID    int `json:"nextTaskID" yaml:"nextTaskID"`
	NextCommentID int `json:"nextCommentID" yaml:"nextCommentID"`
	NextHistoryID int `json:"nextHistoryID" yaml:"nextHistoryID"`
	Version       int `json:"version" yaml:"version"`
}

// New returns an empty store state.
func New() *Data {
	d := &Data{}
	d.Ensure()
	return d
}

// Ensure initializes nil maps and repairs counters that lag behind stored
// records, so hand-edited or older files keep working.
func (d *Data) Ensure() {
	if d.Tasks == nil {
		d.Tasks = make(map[string]*domain.Task)
	}
	if d.Comments == nil {
		d.Comments = make(map[string][]domain.Comment)
	}
	if d.Meta.Version == 0 {
		d.Meta.Version = SchemaVersion
	}
	maxTask, maxComment, maxHistory := 0, 0, 0
	for key, t := range d.Tasks {
		if id, err := strconv.Atoi(key); err == nil {
			t.ID = id
		}
		maxTask = max(maxTask, t.ID)
	}
	for _, cs := range d.Comments {
		for _, c := range cs {
			maxComment = max(maxComment, c.ID)
		}
	}
	for _, h := range d.History {
		maxHistory = max(maxHistory, h.ID)
	}
	d.Meta.NextTaskID = max(d.Meta.NextTaskID, maxTask+1)
	d.Meta.NextCommentID = max(d.Meta.NextCommentID, maxComment+1)
	d.Meta.NextHistoryID = max(d.Meta.NextHistoryID, maxHistory+1)
}

// Clone returns a deep copy of the state.
func (d *Data) Clone() *Data {
	out := &Data{
		Tasks:    make(map[string]*domain.Task, len(d.Tasks)),
		Comments: make(map[string][]domain.Comment, len(d.Comments)),
		History:  make([]domain.TaskHistory, len(d.History)),
		Meta:     d.Meta,
	}
	for k, t := range d.Tasks {
		out.Tasks[k] = t.Clone()
	}
	for k, cs := range d.Comments {
		cc := make([]domain.Comment, len(cs))
		for i := range cs {
			cc[i] = *cs[i].Clone()
		}
		out.Comments[k] = cc
	}
	// History entries are immutable, a shallow copy is enough.
	copy(out.History, d.History)
	return out
}

// Tx implements domain.TaskTx over a Data value.
// It is not safe for concurrent use; stores serialize transactions.
type Tx struct {
	data *Data
}

// NewTx wraps data in a transaction view.
func NewTx(data *Data) *Tx {
	data.Ensure()
	return &Tx{data: data}
}

// Data returns the state the transaction operates on.
func (tx *Tx) Data() *Data {
	return tx.data
}

func key(id int) string {
	return strconv.Itoa(id)
}

// Get retrieves a task by ID.
func (tx *Tx) Get(id int) (*domain.Task, error) {
	t, ok := tx.data.Tasks[key(id)]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

// List retrieves tasks matching the filter.
func (tx *Tx) List(filter domain.TaskFilter) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for _, t := range tx.data.Tasks {
		if filter.Matches(t) {
			tasks = append(tasks, t.Clone())
		}
	}

	// Sort by ID for consistent ordering
	slices.SortFunc(tasks, func(a, b *domain.Task) int {
		return a.ID - b.ID
	})
	return tasks, nil
}

// GetChildren retrieves direct children of a task.
func (tx *Tx) GetChildren(parentID int) ([]*domain.Task, error) {
	return tx.List(domain.TaskFilter{ParentID: &parentID})
}

// Save creates or updates a task.
func (tx *Tx) Save(task *domain.Task) error {
	if task.ID <= 0 {
		return fmt.Errorf("save task: invalid id %d", task.ID)
	}
	c := task.Clone()
	c.Normalize()
	tx.data.Tasks[key(task.ID)] = c
	tx.data.Meta.NextTaskID = max(tx.data.Meta.NextTaskID, task.ID+1)
	return nil
}

// Delete removes a task by ID.
func (tx *Tx) Delete(id int) error {
	if _, ok := tx.data.Tasks[key(id)]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(tx.data.Tasks, key(id))
	return nil
}

// NextID returns the next available task ID.
func (tx *Tx) NextID() (int, error) {
	id := tx.data.Meta.NextTaskID
	tx.data.Meta.NextTaskID++
	return id, nil
}

// GetComments retrieves comments for a task.
func (tx *Tx) GetComments(taskID int) ([]domain.Comment, error) {
	cs := tx.data.Comments[key(taskID)]
	out := make([]domain.Comment, 0, len(cs)) // Return empty slice, not nil
	for i := range cs {
		out = append(out, *cs[i].Clone())
	}
	slices.SortFunc(out, func(a, b domain.Comment) int { return a.ID - b.ID })
	return out, nil
}

// GetComment retrieves a comment by ID.
func (tx *Tx) GetComment(id int) (*domain.Comment, error) {
	for _, cs := range tx.data.Comments {
		for i := range cs {
			if cs[i].ID == id {
				return cs[i].Clone(), nil
			}
		}
	}
	return nil, nil
}

// AddComment stores a comment and assigns its ID.
func (tx *Tx) AddComment(comment domain.Comment) (*domain.Comment, error) {
	c := comment.Clone()
	c.ID = tx.data.Meta.NextCommentID
	tx.data.Meta.NextCommentID++
	k := key(c.TaskID)
	tx.data.Comments[k] = append(tx.data.Comments[k], *c)
	return c.Clone(), nil
}

// DeleteComments removes every comment of a task.
func (tx *Tx) DeleteComments(taskID int) error {
	delete(tx.data.Comments, key(taskID))
	return nil
}

// AppendHistory stores an entry and assigns its ID.
func (tx *Tx) AppendHistory(entry *domain.TaskHistory) error {
	entry.ID = tx.data.Meta.NextHistoryID
	tx.data.Meta.NextHistoryID++
	tx.data.History = append(tx.data.History, *entry)
	return nil
}

// ListHistory retrieves history entries for a task, oldest first.
func (tx *Tx) ListHistory(taskID int) ([]domain.TaskHistory, error) {
	out := make([]domain.TaskHistory, 0)
	for _, h := range tx.data.History {
		if h.TaskID != taskID {
			continue
		}
		desc, err := domain.NormalizeDescription(h.ChangeDescription)
		if err != nil {
			return nil, fmt.Errorf("decode history %d: %w", h.ID, err)
		}
		h.ChangeDescription = desc
		out = append(out, h)
	}
	domain.SortHistory(out)
	return out, nil
}

// Ensure Tx implements TaskTx.
var _ domain.TaskTx = (*Tx)(nil)
