// Package pgstore provides a PostgreSQL-backed implementation of TaskRepository.
//
// Records are kept as JSONB documents next to the columns needed for
// filtering. Writers take a transaction-scoped advisory lock before their
// first read, so guard checks see every committed mutation.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/infra/snapshot"
)

// PostgreSQL error codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUndefinedTable       = "42P01"
)

var namespacePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store implements domain.TaskRepository on PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	ns      string
	lockKey int64
}

// Open connects to dsn and returns a store using the given table namespace.
func Open(ctx context.Context, dsn, namespace string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := New(pool, namespace)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New creates a Store on an existing pool. Tables are named <namespace>_tasks,
// <namespace>_comments and so on.
func New(pool *pgxpool.Pool, namespace string) (*Store, error) {
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	if !namespacePattern.MatchString(namespace) {
		return nil, domain.NewValidationError("store.namespace", fmt.Sprintf("invalid table namespace %q", namespace))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	return &Store{pool: pool, ns: namespace, lockKey: int64(h.Sum64())}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) table(name string) string {
	return s.ns + "_" + name
}

// Initialize creates the tables and the metadata row if they don't exist.
func (s *Store) Initialize(ctx context.Context) (bool, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table("meta") + ` (
			id              INTEGER PRIMARY KEY CHECK (id = 1),
			next_task_id    INTEGER NOT NULL,
			next_comment_id INTEGER NOT NULL,
			next_history_id INTEGER NOT NULL,
			version         INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("tasks") + ` (
			id         INTEGER PRIMARY KEY,
			parent_id  INTEGER,
			capsule_id INTEGER NOT NULL DEFAULT 0,
			status     TEXT NOT NULL,
			data       JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + s.table("tasks_parent") + ` ON ` + s.table("tasks") + `(parent_id) WHERE parent_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("comments") + ` (
			id      INTEGER PRIMARY KEY,
			task_id INTEGER NOT NULL,
			data    JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + s.table("comments_task") + ` ON ` + s.table("comments") + `(task_id)`,
		`CREATE TABLE IF NOT EXISTS ` + s.table("history") + ` (
			id      INTEGER PRIMARY KEY,
			task_id INTEGER NOT NULL,
			data    JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + s.table("history_task") + ` ON ` + s.table("history") + `(task_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return false, fmt.Errorf("create schema: %w", err)
		}
	}

	m := snapshot.New().Meta
	tag, err := s.pool.Exec(ctx, `INSERT INTO `+s.table("meta")+` (id, next_task_id, next_comment_id, next_history_id, version)
		VALUES (1, $1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		m.NextTaskID, m.NextCommentID, m.NextHistoryID, m.Version)
	if err != nil {
		return false, fmt.Errorf("insert meta: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Drop removes every table of the namespace.
func (s *Store) Drop(ctx context.Context) error {
	for _, name := range []string{"history", "comments", "tasks", "meta"} {
		if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS `+s.table(name)); err != nil {
			return fmt.Errorf("drop %s: %w", s.table(name), err)
		}
	}
	return nil
}

// View runs fn in a read-only REPEATABLE READ transaction.
func (s *Store) View(ctx context.Context, fn func(domain.TaskTx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, false, fn)
}

// Update runs fn in a transaction holding the namespace lock. READ COMMITTED
// is used so statements after the lock see the previous writer's commit.
// Serialization failures and deadlocks are reported as domain.ErrConflict.
func (s *Store) Update(ctx context.Context, fn func(domain.TaskTx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, true, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(domain.TaskTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pgTx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if lock {
		if _, err := pgTx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, s.lockKey); err != nil {
			return mapError(fmt.Errorf("acquire lock: %w", err))
		}
	}

	t := &tx{ctx: ctx, tx: pgTx, s: s}
	if _, err := t.loadMeta(); err != nil {
		return mapError(err)
	}
	if err := fn(t); err != nil {
		return mapError(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		case codeUndefinedTable:
			return domain.ErrNotInitialized
		}
	}
	return err
}

// tx implements domain.TaskTx on a pgx transaction.
type tx struct {
	ctx  context.Context
	tx   pgx.Tx
	s    *Store
	meta *snapshot.Meta
}

func (t *tx) loadMeta() (*snapshot.Meta, error) {
	if t.meta != nil {
		return t.meta, nil
	}
	var m snapshot.Meta
	err := t.tx.QueryRow(t.ctx, `SELECT next_task_id, next_comment_id, next_history_id, version FROM `+t.s.table("meta")+` WHERE id = 1`).
		Scan(&m.NextTaskID, &m.NextCommentID, &m.NextHistoryID, &m.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotInitialized
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("read meta: %w", err))
	}
	t.meta = &m
	return t.meta, nil
}

func (t *tx) saveMeta(m snapshot.Meta) error {
	_, err := t.tx.Exec(t.ctx, `UPDATE `+t.s.table("meta")+`
		SET next_task_id = $1, next_comment_id = $2, next_history_id = $3, version = $4 WHERE id = 1`,
		m.NextTaskID, m.NextCommentID, m.NextHistoryID, m.Version)
	if err != nil {
		return fmt.Errorf("update meta: %w", err)
	}
	t.meta = &m
	return nil
}

func scanDocs[T any](rows pgx.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return out, nil
}

// Get retrieves a task by ID.
func (t *tx) Get(id int) (*domain.Task, error) {
	var raw []byte
	err := t.tx.QueryRow(t.ctx, `SELECT data FROM `+t.s.table("tasks")+` WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	var task domain.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decode task %d: %w", id, err)
	}
	return &task, nil
}

// List retrieves tasks matching the filter.
func (t *tx) List(filter domain.TaskFilter) ([]*domain.Task, error) {
	var where []string
	var args []any
	if filter.ParentID != nil {
		args = append(args, *filter.ParentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if filter.RootsOnly {
		where = append(where, "parent_id IS NULL")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CapsuleID != 0 {
		args = append(args, filter.CapsuleID)
		where = append(where, fmt.Sprintf("capsule_id = $%d", len(args)))
	}
	query := `SELECT data FROM ` + t.s.table("tasks")
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := t.tx.Query(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := scanDocs[domain.Task](rows)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]*domain.Task, len(tasks))
	for i := range tasks {
		out[i] = &tasks[i]
	}
	return out, nil
}

// GetChildren retrieves direct children of a task.
func (t *tx) GetChildren(parentID int) ([]*domain.Task, error) {
	return t.List(domain.TaskFilter{ParentID: &parentID})
}

// Save creates or updates a task.
func (t *tx) Save(task *domain.Task) error {
	if task.ID <= 0 {
		return fmt.Errorf("save task: invalid id %d", task.ID)
	}
	c := task.Clone()
	c.Normalize()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = t.tx.Exec(t.ctx, `INSERT INTO `+t.s.table("tasks")+` (id, parent_id, capsule_id, status, data)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (id) DO UPDATE SET parent_id = EXCLUDED.parent_id, capsule_id = EXCLUDED.capsule_id,
			status = EXCLUDED.status, data = EXCLUDED.data`,
		c.ID, c.ParentID, c.CapsuleID, string(c.Status), string(raw))
	if err != nil {
		return fmt.Errorf("save task %d: %w", c.ID, err)
	}
	m, err := t.loadMeta()
	if err != nil {
		return err
	}
	if c.ID >= m.NextTaskID {
		next := *m
		next.NextTaskID = c.ID + 1
		return t.saveMeta(next)
	}
	return nil
}

// Delete removes a task by ID.
func (t *tx) Delete(id int) error {
	tag, err := t.tx.Exec(t.ctx, `DELETE FROM `+t.s.table("tasks")+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// NextID returns the next available task ID.
func (t *tx) NextID() (int, error) {
	m, err := t.loadMeta()
	if err != nil {
		return 0, err
	}
	next := *m
	id := next.NextTaskID
	next.NextTaskID++
	return id, t.saveMeta(next)
}

// GetComments retrieves comments for a task.
func (t *tx) GetComments(taskID int) ([]domain.Comment, error) {
	rows, err := t.tx.Query(t.ctx, `SELECT data FROM `+t.s.table("comments")+` WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	comments, err := scanDocs[domain.Comment](rows)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return comments, nil
}

// GetComment retrieves a comment by ID.
func (t *tx) GetComment(id int) (*domain.Comment, error) {
	var raw []byte
	err := t.tx.QueryRow(t.ctx, `SELECT data FROM `+t.s.table("comments")+` WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	var c domain.Comment
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode comment %d: %w", id, err)
	}
	return &c, nil
}

// AddComment stores a comment and assigns its ID.
func (t *tx) AddComment(comment domain.Comment) (*domain.Comment, error) {
	m, err := t.loadMeta()
	if err != nil {
		return nil, err
	}
	next := *m
	c := comment.Clone()
	c.ID = next.NextCommentID
	next.NextCommentID++
	if err := t.saveMeta(next); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal comment: %w", err)
	}
	if _, err := t.tx.Exec(t.ctx, `INSERT INTO `+t.s.table("comments")+` (id, task_id, data) VALUES ($1, $2, $3::jsonb)`,
		c.ID, c.TaskID, string(raw)); err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

// DeleteComments removes every comment of a task.
func (t *tx) DeleteComments(taskID int) error {
	if _, err := t.tx.Exec(t.ctx, `DELETE FROM `+t.s.table("comments")+` WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	return nil
}

// AppendHistory stores an entry and assigns its ID.
func (t *tx) AppendHistory(entry *domain.TaskHistory) error {
	m, err := t.loadMeta()
	if err != nil {
		return err
	}
	next := *m
	entry.ID = next.NextHistoryID
	next.NextHistoryID++
	if err := t.saveMeta(next); err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if _, err := t.tx.Exec(t.ctx, `INSERT INTO `+t.s.table("history")+` (id, task_id, data) VALUES ($1, $2, $3::jsonb)`,
		entry.ID, entry.TaskID, string(raw)); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListHistory retrieves history entries for a task, oldest first.
func (t *tx) ListHistory(taskID int) ([]domain.TaskHistory, error) {
	rows, err := t.tx.Query(t.ctx, `SELECT data FROM `+t.s.table("history")+` WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	entries, err := scanDocs[domain.TaskHistory](rows)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if entries == nil {
		entries = []domain.TaskHistory{}
	}
	for i := range entries {
		desc, err := domain.NormalizeDescription(entries[i].ChangeDescription)
		if err != nil {
			return nil, fmt.Errorf("decode history %d: %w", entries[i].ID, err)
		}
		entries[i].ChangeDescription = desc
	}
	domain.SortHistory(entries)
	return entries, nil
}

var (
	_ domain.TaskRepository   = (*Store)(nil)
	_ domain.StoreInitializer = (*Store)(nil)
	_ domain.TaskTx           = (*tx)(nil)
)
