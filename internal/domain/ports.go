package domain

import (
	"context"
	"time"
)

// StoreInitializer initializes the data store.
type StoreInitializer interface {
	// Initialize creates the store if it doesn't exist.
	// Returns true when a new store was created.
	Initialize(ctx context.Context) (bool, error)
}

// TaskRepository manages task, comment and history persistence.
//
// View runs fn against a consistent snapshot. Update runs fn exclusively
// against the store; every change made through the TaskTx is committed when
// fn returns nil and discarded when it returns an error. Writers are
// serialized, so guard checks inside fn never race with another mutation.
type TaskRepository interface {
	View(ctx context.Context, fn func(tx TaskTx) error) error
	Update(ctx context.Context, fn func(tx TaskTx) error) error
}

// TaskReader is the read side of a transaction.
type TaskReader interface {
	// Get retrieves a task by ID. Returns nil if not found.
	Get(id int) (*Task, error)

	// List retrieves tasks matching the filter, ordered by ID.
	List(filter TaskFilter) ([]*Task, error)

	// GetChildren retrieves direct children of a task.
	GetChildren(parentID int) ([]*Task, error)

	// GetComments retrieves comments for a task, ordered by ID.
	GetComments(taskID int) ([]Comment, error)

	// GetComment retrieves a comment by ID. Returns nil if not found.
	GetComment(id int) (*Comment, error)

	// ListHistory retrieves history entries for a task, oldest first.
	// Entries of deleted tasks are still returned.
	ListHistory(taskID int) ([]TaskHistory, error)
}

// TaskTx is a unit of work against the store.
type TaskTx interface {
	TaskReader

	// Save creates or updates a task.
	Save(task *Task) error

	// Delete removes a task by ID.
	Delete(id int) error

	// NextID returns the next available task ID.
	NextID() (int, error)

	// AddComment stores a comment and returns it with its assigned ID.
	AddComment(comment Comment) (*Comment, error)

	// DeleteComments removes every comment of a task.
	DeleteComments(taskID int) error

	// AppendHistory stores an entry and assigns its ID. Entries are never
	// updated afterwards.
	AppendHistory(entry *TaskHistory) error
}

// User is an entry of the external user directory.
type User struct {
	ID     string `json:"id" toml:"id" yaml:"id"`
	Name   string `json:"name" toml:"name" yaml:"name"`
	Avatar string `json:"avatar,omitempty" toml:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// Tag is an entry of the external tag directory.
type Tag struct {
	ID    string `json:"id" toml:"id" yaml:"id"`
	Name  string `json:"name" toml:"name" yaml:"name"`
	OrgID string `json:"orgId,omitempty" toml:"org_id,omitempty" yaml:"orgId,omitempty"`
}

// UserDirectory resolves user ids.
type UserDirectory interface {
	// GetUser returns nil when the user is unknown.
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// TagDirectory resolves tag ids.
type TagDirectory interface {
	// GetTag returns nil when the tag is unknown.
	GetTag(ctx context.Context, id string) (*Tag, error)
	ListTags(ctx context.Context, orgID string) ([]Tag, error)
}

// SettingsProvider returns the gate settings of an organization.
type SettingsProvider interface {
	GetSettings(ctx context.Context, orgID string) (GateSettings, error)
}

// ConfigLoader loads configuration from files.
type ConfigLoader interface {
	// Load returns the merged configuration (data dir + global).
	Load() (*Config, error)

	// LoadGlobal returns only the global configuration.
	LoadGlobal() (*Config, error)
}

// Logger writes operational logs. taskID 0 means a global entry.
type Logger interface {
	Info(taskID int, category, msg string)
	Debug(taskID int, category, msg string)
	Warn(taskID int, category, msg string)
	Error(taskID int, category, msg string)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(int, string, string)  {}
func (NopLogger) Debug(int, string, string) {}
func (NopLogger) Warn(int, string, string)  {}
func (NopLogger) Error(int, string, string) {}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
