// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/infra/snapshot"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	return m.NowTime
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.NowTime = m.NowTime.Add(d)
}

// MockTaskRepository is an in-memory domain.TaskRepository.
// Update works on a copy of Data and swaps it in only when fn succeeds, so
// rollback behaves like the real stores. The *Err fields inject failures.
// Fields are ordered to minimize memory padding.
type MockTaskRepository struct {
	Data             *snapshot.Data
	ViewErr          error // returned by View before fn runs
	UpdateErr        error // returned by Update before fn runs
	SaveErr          error // returned by TaskTx.Save
	DeleteErr        error // returned by TaskTx.Delete
	AddCommentErr    error // returned by TaskTx.AddComment
	AppendHistoryErr error // returned by TaskTx.AppendHistory
	ConflictsLeft    int   // Update fails with domain.ErrConflict this many times
	Updates          int   // committed Update calls
	mu               sync.Mutex
}

var _ domain.TaskRepository = (*MockTaskRepository)(nil)

// NewMockTaskRepository creates an empty repository.
func NewMockTaskRepository() *MockTaskRepository {
	return &MockTaskRepository{Data: snapshot.New()}
}

// View runs fn against a copy of the data.
func (m *MockTaskRepository) View(ctx context.Context, fn func(domain.TaskTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	data := m.Data.Clone()
	viewErr := m.ViewErr
	m.mu.Unlock()
	if viewErr != nil {
		return viewErr
	}
	return fn(&mockTx{Tx: snapshot.NewTx(data), repo: m})
}

// Update runs fn against a copy of the data and keeps it when fn succeeds.
func (m *MockTaskRepository) Update(ctx context.Context, fn func(domain.TaskTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if m.ConflictsLeft > 0 {
		m.ConflictsLeft--
		return domain.ErrConflict
	}
	data := m.Data.Clone()
	if err := fn(&mockTx{Tx: snapshot.NewTx(data), repo: m}); err != nil {
		return err
	}
	m.Data = data
	m.Updates++
	return nil
}

// AddTask stores task directly, bypassing transactions. Zero timestamps are
// left as they are.
func (m *MockTaskRepository) AddTask(task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := snapshot.NewTx(m.Data).Save(task); err != nil {
		panic(fmt.Sprintf("testutil: add task: %v", err))
	}
}

// AddComment stores a comment directly and returns its assigned ID.
func (m *MockTaskRepository) AddComment(c domain.Comment) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := snapshot.NewTx(m.Data).AddComment(c)
	if err != nil {
		panic(fmt.Sprintf("testutil: add comment: %v", err))
	}
	return out.ID
}

// Task returns the stored task, or nil.
func (m *MockTaskRepository) Task(id int) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, _ := snapshot.NewTx(m.Data).Get(id)
	return t
}

// Comments returns the stored comments of a task.
func (m *MockTaskRepository) Comments(taskID int) []domain.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, _ := snapshot.NewTx(m.Data).GetComments(taskID)
	return c
}

// History returns the stored history of a task, oldest first.
func (m *MockTaskRepository) History(taskID int) []domain.TaskHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, _ := snapshot.NewTx(m.Data).ListHistory(taskID)
	return h
}

// mockTx injects the repository's configured errors into a snapshot.Tx.
type mockTx struct {
	*snapshot.Tx
	repo *MockTaskRepository
}

func (t *mockTx) Save(task *domain.Task) error {
	if t.repo.SaveErr != nil {
		return t.repo.SaveErr
	}
	return t.Tx.Save(task)
}

func (t *mockTx) Delete(id int) error {
	if t.repo.DeleteErr != nil {
		return t.repo.DeleteErr
	}
	return t.Tx.Delete(id)
}

func (t *mockTx) AddComment(c domain.Comment) (*domain.Comment, error) {
	if t.repo.AddCommentErr != nil {
		return nil, t.repo.AddCommentErr
	}
	return t.Tx.AddComment(c)
}

func (t *mockTx) AppendHistory(entry *domain.TaskHistory) error {
	if t.repo.AppendHistoryErr != nil {
		return t.repo.AppendHistoryErr
	}
	return t.Tx.AppendHistory(entry)
}

// LogEntry is one message captured by MockLogger.
type LogEntry struct {
	Level    string
	Category string
	Msg      string
	TaskID   int
}

// MockLogger records every message.
type MockLogger struct {
	Entries []LogEntry
	mu      sync.Mutex
}

var _ domain.Logger = (*MockLogger)(nil)

func (l *MockLogger) add(level string, taskID int, category, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, TaskID: taskID, Category: category, Msg: msg})
}

// Info records an info message.
func (l *MockLogger) Info(taskID int, category, msg string) { l.add("INFO", taskID, category, msg) }

// Debug records a debug message.
func (l *MockLogger) Debug(taskID int, category, msg string) { l.add("DEBUG", taskID, category, msg) }

// Warn records a warning message.
func (l *MockLogger) Warn(taskID int, category, msg string) { l.add("WARN", taskID, category, msg) }

// Error records an error message.
func (l *MockLogger) Error(taskID int, category, msg string) { l.add("ERROR", taskID, category, msg) }

// MockSettings is a fixed domain.SettingsProvider.
type MockSettings struct {
	Err      error
	ByOrg    map[string]domain.GateSettings
	Settings domain.GateSettings
}

var _ domain.SettingsProvider = (*MockSettings)(nil)

// GetSettings returns the org's entry, else Settings.
func (m *MockSettings) GetSettings(_ context.Context, orgID string) (domain.GateSettings, error) {
	if m.Err != nil {
		return domain.GateSettings{}, m.Err
	}
	if s, ok := m.ByOrg[orgID]; ok {
		return s, nil
	}
	return m.Settings, nil
}

// MockUserDirectory is a map-backed domain.UserDirectory.
type MockUserDirectory map[string]domain.User

// GetUser returns the user or nil.
func (m MockUserDirectory) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// ListUsers returns every user in unspecified order.
func (m MockUserDirectory) ListUsers(_ context.Context) ([]domain.User, error) {
	out := make([]domain.User, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	return out, nil
}

// MockTagDirectory is a map-backed domain.TagDirectory.
type MockTagDirectory map[string]domain.Tag

// GetTag returns the tag or nil.
func (m MockTagDirectory) GetTag(_ context.Context, id string) (*domain.Tag, error) {
	t, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ListTags returns tags of orgID (all when empty) in unspecified order.
func (m MockTagDirectory) ListTags(_ context.Context, orgID string) ([]domain.Tag, error) {
	out := make([]domain.Tag, 0, len(m))
	for _, t := range m {
		if orgID == "" || t.OrgID == orgID {
			out = append(out, t)
		}
	}
	return out, nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to v.
func TimePtr(v time.Time) *time.Time {
	return &v
}
