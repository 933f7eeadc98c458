// Package badgerstore provides a BadgerDB-backed implementation of TaskRepository.
//
// Records are stored under ordered keys so prefix scans return them by ID:
//
//	meta                          → counters
//	task/<id>                     → task JSON
//	comment/<task-id>/<id>        → comment JSON
//	comment-index/<id>            → owning task id
//	history/<task-id>/<id>        → history entry JSON
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/infra/snapshot"
)

// Config holds configuration for the BadgerDB instance.
type Config struct {
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger

	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// Store implements domain.TaskRepository on BadgerDB.
type Store struct {
	db *badger.DB
	mu sync.Mutex // serializes writers so guard checks never race
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory database. Data is lost when closed.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// View runs fn in a read-only badger transaction.
func (s *Store) View(ctx context.Context, fn func(domain.TaskTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		tx := &tx{txn: txn}
		if _, err := tx.loadMeta(); err != nil {
			return err
		}
		return fn(tx)
	})
}

// Update runs fn in a read-write badger transaction. The transaction is
// discarded when fn fails and committed otherwise.
func (s *Store) Update(ctx context.Context, fn func(domain.TaskTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		tx := &tx{txn: txn}
		if _, err := tx.loadMeta(); err != nil {
			return err
		}
		return fn(tx)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrConflict
	}
	return err
}

// Initialize writes the metadata record if it doesn't exist.
func (s *Store) Initialize(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(metaKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("read meta: %w", err)
		}
		created = true
		return (&tx{txn: txn}).saveMeta(snapshot.New().Meta)
	})
	return created, err
}

var (
	metaKey            = []byte("meta")
	taskPrefix         = "task/"
	commentPrefix      = "comment/"
	commentIndexPrefix = "comment-index/"
	historyPrefix      = "history/"
)

// pad keeps lexical key order equal to numeric order.
func pad(id int) string {
	return fmt.Sprintf("%012d", id)
}

func taskKey(id int) []byte {
	return []byte(taskPrefix + pad(id))
}

func commentKey(taskID, id int) []byte {
	return []byte(commentPrefix + pad(taskID) + "/" + pad(id))
}

func commentIndexKey(id int) []byte {
	return []byte(commentIndexPrefix + pad(id))
}

func historyKey(taskID, id int) []byte {
	return []byte(historyPrefix + pad(taskID) + "/" + pad(id))
}

// tx implements domain.TaskTx on a badger transaction.
type tx struct {
	txn  *badger.Txn
	meta *snapshot.Meta
}

func (t *tx) loadMeta() (*snapshot.Meta, error) {
	if t.meta != nil {
		return t.meta, nil
	}
	var m snapshot.Meta
	if err := t.getJSON(metaKey, &m); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrNotInitialized
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}
	t.meta = &m
	return t.meta, nil
}

func (t *tx) saveMeta(m snapshot.Meta) error {
	t.meta = &m
	return t.setJSON(metaKey, m)
}

func (t *tx) getJSON(key []byte, v any) error {
	item, err := t.txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (t *tx) setJSON(key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return t.txn.Set(key, val)
}

// scan decodes every value under prefix, in key order.
func (t *tx) scan(prefix string, decode func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error {
			return decode(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a task by ID.
func (t *tx) Get(id int) (*domain.Task, error) {
	var task domain.Task
	if err := t.getJSON(taskKey(id), &task); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// List retrieves tasks matching the filter.
func (t *tx) List(filter domain.TaskFilter) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := t.scan(taskPrefix, func(_, val []byte) error {
		var task domain.Task
		if err := json.Unmarshal(val, &task); err != nil {
			return fmt.Errorf("decode task: %w", err)
		}
		if filter.Matches(&task) {
			tasks = append(tasks, &task)
		}
		return nil
	})
	return tasks, err
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
	if err := t.setJSON(taskKey(c.ID), c); err != nil {
		return err
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
	if _, err := t.txn.Get(taskKey(id)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrTaskNotFound
		}
		return fmt.Errorf("get task: %w", err)
	}
	return t.txn.Delete(taskKey(id))
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
	comments := []domain.Comment{}
	err := t.scan(commentPrefix+pad(taskID)+"/", func(_, val []byte) error {
		var c domain.Comment
		if err := json.Unmarshal(val, &c); err != nil {
			return fmt.Errorf("decode comment: %w", err)
		}
		comments = append(comments, c)
		return nil
	})
	return comments, err
}

// GetComment retrieves a comment by ID.
func (t *tx) GetComment(id int) (*domain.Comment, error) {
	var taskID int
	if err := t.getJSON(commentIndexKey(id), &taskID); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get comment index: %w", err)
	}
	var c domain.Comment
	if err := t.getJSON(commentKey(taskID, id), &c); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get comment: %w", err)
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
	if err := t.setJSON(commentKey(c.TaskID, c.ID), c); err != nil {
		return nil, err
	}
	if err := t.setJSON(commentIndexKey(c.ID), c.TaskID); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteComments removes every comment of a task.
func (t *tx) DeleteComments(taskID int) error {
	var ids []int
	err := t.scan(commentPrefix+pad(taskID)+"/", func(_, val []byte) error {
		var c domain.Comment
		if err := json.Unmarshal(val, &c); err != nil {
			return fmt.Errorf("decode comment: %w", err)
		}
		ids = append(ids, c.ID)
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := t.txn.Delete(commentKey(taskID, id)); err != nil {
			return err
		}
		if err := t.txn.Delete(commentIndexKey(id)); err != nil {
			return err
		}
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
	return t.setJSON(historyKey(entry.TaskID, entry.ID), entry)
}

// ListHistory retrieves history entries for a task, oldest first.
func (t *tx) ListHistory(taskID int) ([]domain.TaskHistory, error) {
	entries := []domain.TaskHistory{}
	err := t.scan(historyPrefix+pad(taskID)+"/", func(key, val []byte) error {
		var h domain.TaskHistory
		if err := json.Unmarshal(val, &h); err != nil {
			return fmt.Errorf("decode history %s: %w", key, err)
		}
		desc, err := domain.NormalizeDescription(h.ChangeDescription)
		if err != nil {
			return fmt.Errorf("decode history %d: %w", h.ID, err)
		}
		h.ChangeDescription = desc
		entries = append(entries, h)
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortHistory(entries)
	return entries, nil
}

var (
	_ domain.TaskRepository   = (*Store)(nil)
	_ domain.StoreInitializer = (*Store)(nil)
	_ domain.TaskTx           = (*tx)(nil)
)
