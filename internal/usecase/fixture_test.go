package usecase

import (
	"time"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/testutil"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fixture bundles the doubles most use case tests need.
type fixture struct {
	repo     *testutil.MockTaskRepository
	clock    *testutil.MockClock
	settings *testutil.MockSettings
	logger   *testutil.MockLogger
}

func newFixture() *fixture {
	return &fixture{
		repo:     testutil.NewMockTaskRepository(),
		clock:    &testutil.MockClock{NowTime: testNow},
		settings: &testutil.MockSettings{Settings: domain.DefaultGateSettings()},
		logger:   &testutil.MockLogger{},
	}
}

// task stores a task in capsule 1 with the given status and returns it.
func (f *fixture) task(id int, status domain.Status, opts ...func(*domain.Task)) *domain.Task {
	t := &domain.Task{
		ID:        id,
		CapsuleID: 1,
		Title:     "Task " + domain.TaskRef(id),
		Status:    status,
		Created:   testNow.Add(-time.Hour),
		Updated:   testNow.Add(-time.Hour),
	}
	if status == domain.StatusCompleted {
		done := testNow.Add(-time.Hour)
		t.CompletedDate = &done
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Normalize()
	f.repo.AddTask(t)
	return t
}

func withParent(id int) func(*domain.Task) {
	return func(t *domain.Task) { t.ParentID = &id }
}

func withBlockers(ids ...int) func(*domain.Task) {
	return func(t *domain.Task) { t.BlockerIDs = ids }
}

func withCapsule(id int) func(*domain.Task) {
	return func(t *domain.Task) { t.CapsuleID = id }
}
