// Package gitstore provides a Git plumbing-based implementation of TaskRepository.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"gopkg.in/yaml.v3"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/infra/snapshot"
)

// Store implements domain.TaskRepository using Git plumbing (refs, trees and blobs).
//
// Every committed transaction produces one commit:
//
//	refs/<namespace>/state → commit → tree
//	  meta           → blob (counters)
//	  task-<id>      → blob (task YAML)
//	  comments-<id>  → blob (comments of a task)
//	  history-<id>   → blob (history entries of a task)
//
// The ref is moved with compare-and-swap, so a concurrent writer in another
// process surfaces as domain.ErrConflict instead of a lost update.
//
// With a BlobSealer every blob is stored sealed; tree entry names and commit
// messages stay readable.
type Store struct {
	repo      *git.Repository
	sealer    BlobSealer // nil stores plaintext YAML
	namespace string     // e.g., "capsule"
	mu        sync.RWMutex
}

// BlobSealer encrypts blob contents. Seal must be deterministic so unchanged
// blobs keep their hash.
type BlobSealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Option configures a Store.
type Option func(*Store)

// WithSealer stores every blob sealed by sealer.
func WithSealer(sealer BlobSealer) Option {
	return func(s *Store) { s.sealer = sealer }
}

const (
	metaEntry     = "meta"
	taskPrefix    = "task-"
	commentPrefix = "comments-"
	historyPrefix = "history-"
)

// commentsData holds comments for a task.
type commentsData struct {
	Comments []domain.Comment `yaml:"comments"`
}

// historyData holds history entries for a task.
type historyData struct {
	Entries []domain.TaskHistory `yaml:"entries"`
}

// New opens the repository at path, creating a bare one if none exists.
func New(path, namespace string, opts ...Option) (*Store, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(path, true)
	}
	if err != nil {
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	return NewWithRepo(repo, namespace, opts...), nil
}

// NewWithRepo creates a new Store with an existing repository instance.
func NewWithRepo(repo *git.Repository, namespace string, opts ...Option) *Store {
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	s := &Store{
		repo:      repo,
		namespace: namespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stateRef returns the ref name for the current state commit.
func (s *Store) stateRef() plumbing.ReferenceName {
	return plumbing.ReferenceName("refs/" + s.namespace + "/state")
}

// View runs fn against the state of the current commit.
func (s *Store) View(ctx context.Context, fn func(domain.TaskTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, data, err := s.load()
	if err != nil {
		return err
	}
	return fn(snapshot.NewTx(data))
}

// Update runs fn and commits the resulting state when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(domain.TaskTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, data, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(snapshot.NewTx(data)); err != nil {
		return err
	}
	return s.commit(ref, data, "update")
}

// Initialize creates the state ref with an empty store if it doesn't exist.
func (s *Store) Initialize(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.repo.Reference(s.stateRef(), true)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, fmt.Errorf("check state ref: %w", err)
	}
	if err := s.commit(nil, snapshot.New(), "initialize"); err != nil {
		return false, err
	}
	return true, nil
}

// IsInitialized checks if the store has been initialized.
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.repo.Reference(s.stateRef(), true)
	return err == nil
}

// Revisions returns the number of committed states, the initial one included.
func (s *Store) Revisions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, err := s.repo.Reference(s.stateRef(), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, domain.ErrNotInitialized
		}
		return 0, fmt.Errorf("get state ref: %w", err)
	}
	iter, err := s.repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return 0, fmt.Errorf("walk state log: %w", err)
	}
	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	return n, err
}

// load reads the state commit into memory.
func (s *Store) load() (*plumbing.Reference, *snapshot.Data, error) {
	ref, err := s.repo.Reference(s.stateRef(), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil, domain.ErrNotInitialized
		}
		return nil, nil, fmt.Errorf("get state ref: %w", err)
	}

	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("get state commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("get state tree: %w", err)
	}

	data := &snapshot.Data{}
	data.Tasks = make(map[string]*domain.Task)
	data.Comments = make(map[string][]domain.Comment)
	for _, entry := range tree.Entries {
		content, err := s.readBlob(entry.Hash)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", entry.Name, err)
		}
		if err := decodeEntry(data, entry.Name, content); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", entry.Name, err)
		}
	}
	data.Ensure()

	return ref, data, nil
}

func decodeEntry(data *snapshot.Data, name string, content []byte) error {
	switch {
	case name == metaEntry:
		return yaml.Unmarshal(content, &data.Meta)
	case strings.HasPrefix(name, taskPrefix):
		var task domain.Task
		if err := yaml.Unmarshal(content, &task); err != nil {
			return err
		}
		data.Tasks[strings.TrimPrefix(name, taskPrefix)] = &task
	case strings.HasPrefix(name, commentPrefix):
		var cd commentsData
		if err := yaml.Unmarshal(content, &cd); err != nil {
			return err
		}
		data.Comments[strings.TrimPrefix(name, commentPrefix)] = cd.Comments
	case strings.HasPrefix(name, historyPrefix):
		var hd historyData
		if err := yaml.Unmarshal(content, &hd); err != nil {
			return err
		}
		data.History = append(data.History, hd.Entries...)
	}
	// Unknown entries are ignored so newer layouts stay readable.
	return nil
}

// commit writes data as a new state commit on top of parent.
func (s *Store) commit(parent *plumbing.Reference, data *snapshot.Data, message string) error {
	treeHash, err := s.buildTree(data)
	if err != nil {
		return err
	}

	now := time.Now()
	sig := object.Signature{Name: "capsule", Email: "capsule@localhost", When: now}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  treeHash,
	}
	if parent != nil {
		commit.ParentHashes = []plumbing.Hash{parent.Hash()}
	}

	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return fmt.Errorf("encode commit: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("store commit: %w", err)
	}

	newRef := plumbing.NewHashReference(s.stateRef(), hash)
	if err := s.repo.Storer.CheckAndSetReference(newRef, parent); err != nil {
		if errors.Is(err, storage.ErrReferenceHasChanged) {
			return domain.ErrConflict
		}
		return fmt.Errorf("set state ref: %w", err)
	}
	return nil
}

// buildTree creates a tree object holding one blob per record group.
func (s *Store) buildTree(data *snapshot.Data) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	add := func(name string, v any) error {
		content, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		hash, err := s.writeBlob(content)
		if err != nil {
			return err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: hash})
		return nil
	}

	if err := add(metaEntry, data.Meta); err != nil {
		return plumbing.ZeroHash, err
	}
	for key, task := range data.Tasks {
		if err := add(taskPrefix+key, task); err != nil {
			return plumbing.ZeroHash, err
		}
	}
	for key, comments := range data.Comments {
		if len(comments) == 0 {
			continue
		}
		if err := add(commentPrefix+key, commentsData{Comments: comments}); err != nil {
			return plumbing.ZeroHash, err
		}
	}
	byTask := make(map[int][]domain.TaskHistory)
	for _, h := range data.History {
		byTask[h.TaskID] = append(byTask[h.TaskID], h)
	}
	for taskID, hs := range byTask {
		if err := add(historyPrefix+strconv.Itoa(taskID), historyData{Entries: hs}); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	// Sort entries by name for consistent tree hash
	slices.SortFunc(entries, func(a, b object.TreeEntry) int {
		return strings.Compare(a.Name, b.Name)
	})

	tree := &object.Tree{Entries: entries}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}

	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store tree: %w", err)
	}
	return hash, nil
}

// writeBlob writes data to a blob and returns the hash.
func (s *Store) writeBlob(data []byte) (plumbing.Hash, error) {
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("seal blob: %w", err)
		}
		data = sealed
	}
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("create blob writer: %w", err)
	}

	if _, writeErr := writer.Write(data); writeErr != nil {
		_ = writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", writeErr)
	}
	_ = writer.Close()

	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob: %w", err)
	}

	return hash, nil
}

// readBlob reads data from a blob.
func (s *Store) readBlob(hash plumbing.Hash) ([]byte, error) {
	blob, err := s.repo.BlobObject(hash)
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if s.sealer == nil {
		return data, nil
	}
	opened, err := s.sealer.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", hash, err)
	}
	return opened, nil
}

// Ensure Store implements TaskRepository.
var _ domain.TaskRepository = (*Store)(nil)

// Ensure Store implements StoreInitializer.
var _ domain.StoreInitializer = (*Store)(nil)
