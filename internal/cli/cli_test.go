package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/infra/crypto"
	"github.com/runoshun/capsule/internal/testutil"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestContainer creates an app.Container with mock dependencies.
func newTestContainer(repo *testutil.MockTaskRepository) *app.Container {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.NewWithDeps(
		domain.NewDefaultConfig(),
		repo,
		nil,
		&testutil.MockClock{NowTime: testNow},
		logger,
	)
}

func addTask(repo *testutil.MockTaskRepository, id int, status domain.Status, parentID *int, blockers ...int) {
	task := &domain.Task{
		ID:         id,
		CapsuleID:  1,
		Title:      "Task " + domain.TaskRef(id),
		Status:     status,
		ParentID:   parentID,
		BlockerIDs: blockers,
		Created:    testNow.Add(-time.Hour),
		Updated:    testNow.Add(-time.Hour),
	}
	if status == domain.StatusCompleted {
		task.CompletedDate = testutil.TimePtr(testNow.Add(-time.Hour))
	}
	repo.AddTask(task)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, c *app.Container, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(c, "test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewCommand(t *testing.T) {
	t.Setenv("CAPSULE_USER", "alice")
	repo := testutil.NewMockTaskRepository()
	c := newTestContainer(repo)

	out, err := execute(t, c, "new", "--capsule", "1", "--title", "Launch",
		"--priority", "high", "--status", "In Progress", "--due", "2024-02-01", "--assign", "u-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Created task #1")
	task := repo.Task(1)
	require.NotNil(t, task)
	assert.Equal(t, "Launch", task.Title)
	assert.Equal(t, domain.StatusInProgress, task.Status)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *task.DueDate)
	assert.Equal(t, []string{"u-1"}, task.AssignedUserIDs)
	assert.Equal(t, "alice", repo.History(1)[0].UserID)
}

func TestNewCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing capsule", args: []string{"new", "--title", "a"}},
		{name: "unknown status", args: []string{"new", "--capsule", "1", "--title", "a", "--status", "later"}},
		{name: "bad date", args: []string{"new", "--capsule", "1", "--title", "a", "--due", "tomorrow"}},
		{name: "unknown blocker", args: []string{"new", "--capsule", "1", "--title", "a", "--blocker", "9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewMockTaskRepository()

			_, err := execute(t, newTestContainer(repo), tt.args...)

			assert.Error(t, err)
			assert.Nil(t, repo.Task(1))
		})
	}
}

func TestListAndShowCommands(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	addTask(repo, 1, domain.StatusTodo, nil)
	addTask(repo, 2, domain.StatusInProgress, testutil.IntPtr(1))
	addTask(repo, 3, domain.StatusTodo, nil, 1)
	c := newTestContainer(repo)

	out, err := execute(t, c, "list", "--roots")
	require.NoError(t, err)
	assert.Contains(t, out, "Task #1")
	assert.Contains(t, out, "Task #3")
	assert.NotContains(t, out, "Task #2")

	out, err = execute(t, c, "list", "--status", "in progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Task #2")
	assert.NotContains(t, out, "Task #1")

	out, err = execute(t, c, "show", "#1")
	require.NoError(t, err)
	assert.Contains(t, out, "# Task 1: Task #1")
	assert.Contains(t, out, "Status: To Do")
	assert.Contains(t, out, "Subtasks:\n  #2 [In Progress] Task #2")
	assert.Contains(t, out, "Blocking:\n  #3 [To Do] Task #3")

	_, err = execute(t, c, "show", "99")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = execute(t, c, "show", "x")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEditCommand(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	addTask(repo, 1, domain.StatusTodo, nil, 2)
	addTask(repo, 2, domain.StatusTodo, nil)
	addTask(repo, 3, domain.StatusTodo, nil)
	c := newTestContainer(repo)

	out, err := execute(t, c, "edit", "3", "--title", "Renamed", "--add-blocker", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated task #3")
	assert.Equal(t, "Renamed", repo.Task(3).Title)
	assert.Equal(t, []int{2}, repo.Task(3).BlockerIDs)

	_, err = execute(t, c, "edit", "2", "--add-blocker", "1")
	assert.ErrorIs(t, err, domain.ErrCycle)
	assert.Empty(t, repo.Task(2).BlockerIDs)

	_, err = execute(t, c, "edit", "3", "--parent", "1", "--no-parent")
	assert.Error(t, err)
}

func TestCompleteCommand(t *testing.T) {
	t.Run("rejected with open items", func(t *testing.T) {
		repo := testutil.NewMockTaskRepository()
		addTask(repo, 1, domain.StatusTodo, nil, 3)
		addTask(repo, 2, domain.StatusReview, testutil.IntPtr(1))
		addTask(repo, 3, domain.StatusTodo, nil)

		out, err := execute(t, newTestContainer(repo), "complete", "1")

		assert.ErrorIs(t, err, domain.ErrCompletionRejected)
		assert.Contains(t, out, "Open subtasks:\n  #2 [Review/Approval] Task #2")
		assert.Contains(t, out, "Open blockers:\n  #3 [To Do] Task #3")
		assert.Equal(t, domain.StatusTodo, repo.Task(1).Status)
	})

	t.Run("complete then reopen", func(t *testing.T) {
		repo := testutil.NewMockTaskRepository()
		addTask(repo, 1, domain.StatusTodo, nil)
		c := newTestContainer(repo)

		out, err := execute(t, c, "complete", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "Completed task #1")
		assert.Equal(t, domain.StatusCompleted, repo.Task(1).Status)

		out, err = execute(t, c, "complete", "1", "--reopen", "--status", "needs revision")
		require.NoError(t, err)
		assert.Contains(t, out, "Reopened task #1 as Needs Revision")
		assert.Nil(t, repo.Task(1).CompletedDate)
	})
}

func TestCheckCommand(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	addTask(repo, 1, domain.StatusTodo, nil)
	addTask(repo, 2, domain.StatusTodo, testutil.IntPtr(1))
	addTask(repo, 3, domain.StatusTodo, nil)
	c := newTestContainer(repo)

	out, err := execute(t, c, "check", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "cannot be completed yet")
	assert.Contains(t, out, "#2")

	out, err = execute(t, c, "check", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Task #3 can be completed")
}

func TestRmCommand(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	addTask(repo, 1, domain.StatusTodo, nil)
	addTask(repo, 2, domain.StatusTodo, testutil.IntPtr(1))
	addTask(repo, 3, domain.StatusTodo, nil, 2)

	out, err := execute(t, newTestContainer(repo), "rm", "1")

	require.NoError(t, err)
	assert.Contains(t, out, "Deleted #1, #2")
	assert.Contains(t, out, "Removed from blockers of #3")
	assert.Nil(t, repo.Task(1))
	assert.Nil(t, repo.Task(2))
}

func TestCommentCommands(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	addTask(repo, 1, domain.StatusTodo, nil)
	c := newTestContainer(repo)

	out, err := execute(t, c, "comment", "1", "Top level")
	require.NoError(t, err)
	assert.Contains(t, out, "Added comment 1 to task #1")

	_, err = execute(t, c, "comment", "1", "--reply-to", "1", "A reply")
	require.NoError(t, err)

	_, err = execute(t, c, "comment", "1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)

	out, err = execute(t, c, "comments", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] ")
	assert.Contains(t, out, "  Top level\n")
	assert.Contains(t, out, "    [2] ")
	assert.Contains(t, out, "      A reply\n")
}

func TestHistoryCommand(t *testing.T) {
	t.Setenv("CAPSULE_USER", "u-1")
	repo := testutil.NewMockTaskRepository()
	cfg := domain.NewDefaultConfig()
	cfg.Users = []domain.User{{ID: "u-1", Name: "Alice"}}
	c := app.NewWithDeps(cfg, repo, nil, &testutil.MockClock{NowTime: testNow},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := execute(t, c, "new", "--capsule", "1", "--title", "Draft")
	require.NoError(t, err)
	_, err = execute(t, c, "attach", "1", "specs/plan.pdf")
	require.NoError(t, err)

	out, err := execute(t, c, "history", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, `title: (none) -> "Draft"`)
	assert.Contains(t, out, "file: plan.pdf")

	out, err = execute(t, c, "history", "1", "-o", "yaml")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "created", entries[0]["changeType"])
	assert.Equal(t, "fileAttached", entries[1]["changeType"])

	_, err = execute(t, c, "history", "1", "-o", "xml")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseGlobalFlags(t *testing.T) {
	envDir := t.TempDir()
	flagDir := t.TempDir()

	t.Run("environment", func(t *testing.T) {
		t.Setenv("CAPSULE_DATA_DIR", envDir)
		t.Setenv("CAPSULE_MIRROR_LOGS", "true")

		got, err := parseGlobalFlags([]string{"list", "--roots"})

		require.NoError(t, err)
		assert.Equal(t, envDir, got.DataDir)
		assert.True(t, got.MirrorLogs)
	})

	t.Run("flag overrides environment", func(t *testing.T) {
		t.Setenv("CAPSULE_DATA_DIR", envDir)

		got, err := parseGlobalFlags([]string{"history", "1", "-o", "yaml", "--data-dir", flagDir})

		require.NoError(t, err)
		assert.Equal(t, flagDir, got.DataDir)
		assert.False(t, got.MirrorLogs)
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("CAPSULE_DATA_DIR", "")

		got, err := parseGlobalFlags(nil)

		require.NoError(t, err)
		assert.Equal(t, domain.DataDirName, filepath.Base(got.DataDir))
		assert.True(t, filepath.IsAbs(got.DataDir))
	})
}

func TestRun_EndToEnd(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), domain.DataDirName)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CAPSULE_USER", "bob")
	ctx := context.Background()

	run := func(args ...string) string {
		t.Helper()
		var stdout bytes.Buffer
		err := Run(ctx, append([]string{"--data-dir", dataDir}, args...), "test", &stdout, io.Discard)
		require.NoError(t, err, strings.Join(args, " "))
		return stdout.String()
	}

	assert.Contains(t, run("init"), "Initialized json store")
	assert.FileExists(t, domain.DataConfigPath(dataDir))
	assert.Contains(t, run("init"), "already initialized")

	run("new", "--capsule", "1", "--title", "Parent")
	run("new", "--capsule", "1", "--title", "Child", "--parent", "1")
	run("complete", "2")
	assert.Contains(t, run("complete", "1"), "Completed task #1")
	assert.Contains(t, run("config", "show"), "[store]")

	out := run("history", "1")
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "bob")
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	c := newTestContainer(repo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRootCommand(c, "test")
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--retry-attempts", "5", "--metrics=false"})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Equal(t, "127.0.0.1:0", c.AppConfig.Server.Addr)
	assert.Equal(t, 5, c.AppConfig.Server.RetryAttempts)
	assert.False(t, c.AppConfig.Server.Metrics)
}

func TestCanRunWithoutContainer(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "no args", args: nil, want: true},
		{name: "help command", args: []string{"help", "new"}, want: true},
		{name: "help flag", args: []string{"new", "--help"}, want: true},
		{name: "version flag", args: []string{"--version"}, want: true},
		{name: "regular command", args: []string{"list"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canRunWithoutContainer(tt.args))
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, os.WriteFile(domain.DataConfigPath(dataDir), []byte("[store]\ntype = \"floppy\"\n"), 0o600))
	args := []string{"--data-dir", dataDir}

	err := Run(context.Background(), append(args, "list"), "test", io.Discard, io.Discard)
	assert.ErrorIs(t, err, domain.ErrValidation)

	var stdout bytes.Buffer
	require.NoError(t, Run(context.Background(), append(args, "--version"), "1.2.3", &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "1.2.3")
}

func TestConfigGenKeyCommand(t *testing.T) {
	out, err := execute(t, newTestContainer(testutil.NewMockTaskRepository()), "config", "gen-key")

	require.NoError(t, err)
	assert.True(t, crypto.ValidKey(strings.TrimSpace(out)))
}
