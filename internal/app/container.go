// Package app provides the dependency injection container for the application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/infra/badgerstore"
	"github.com/runoshun/capsule/internal/infra/config"
	"github.com/runoshun/capsule/internal/infra/crypto"
	"github.com/runoshun/capsule/internal/infra/directory"
	"github.com/runoshun/capsule/internal/infra/gitstore"
	"github.com/runoshun/capsule/internal/infra/jsonstore"
	"github.com/runoshun/capsule/internal/infra/logging"
	"github.com/runoshun/capsule/internal/infra/metrics"
	"github.com/runoshun/capsule/internal/infra/pgstore"
	"github.com/runoshun/capsule/internal/usecase"
)

// Options tune container construction.
type Options struct {
	Stderr          io.Writer // slog output (default os.Stderr)
	GlobalConfigDir string    // Overrides $XDG_CONFIG_HOME/capsule when set
	MirrorLogs      bool      // Forward domain log entries to the slog logger
}

// Container provides dependency injection for the application.
// It holds all port implementations and provides factory methods for use cases.
type Container struct {
	// Ports (interfaces bound to implementations)
	Tasks            domain.TaskRepository
	StoreInitializer domain.StoreInitializer
	Clock            domain.Clock
	ConfigLoader     domain.ConfigLoader
	Settings         domain.SettingsProvider
	Users            domain.UserDirectory
	Tags             domain.TagDirectory
	TaskLog          domain.Logger

	// Pointer fields
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	AppConfig *domain.Config

	closers []func() error

	// DataDir is the .capsule directory the container works on.
	DataDir string
}

// New loads the configuration of dataDir and wires the configured store.
func New(ctx context.Context, dataDir string, opts Options) (*Container, error) {
	var loader *config.Loader
	if opts.GlobalConfigDir != "" {
		loader = config.NewLoaderWithGlobalDir(dataDir, opts.GlobalConfigDir)
	} else {
		loader = config.NewLoader(dataDir)
	}
	appConfig, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	level := logging.ParseLevel(appConfig.Log.Level)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: level,
	}))
	for _, w := range appConfig.Warnings {
		logger.Warn("config", "warning", w)
	}

	c := &Container{
		Clock:        domain.RealClock{},
		ConfigLoader: loader,
		Logger:       logger,
		Metrics:      metrics.New(),
		AppConfig:    appConfig,
		DataDir:      dataDir,
	}
	if err := c.openStore(ctx); err != nil {
		return nil, err
	}

	dir := directory.NewStatic(appConfig)
	c.Settings = dir
	c.Users = dir
	c.Tags = dir

	logOpts := []logging.Option{logging.WithClock(c.Clock)}
	if opts.MirrorLogs {
		logOpts = append(logOpts, logging.WithMirror(logger))
	}
	taskLog := logging.New(dataDir, level, logOpts...)
	c.TaskLog = taskLog
	c.closers = append(c.closers, taskLog.Close)
	return c, nil
}

// openStore binds Tasks and StoreInitializer to the backend named by [store].
func (c *Container) openStore(ctx context.Context) error {
	cfg := c.AppConfig
	switch cfg.Store.Type {
	case domain.StoreJSON:
		s := jsonstore.New(cfg.StorePath(c.DataDir, domain.JSONStoreFile))
		c.Tasks, c.StoreInitializer = s, s
	case domain.StoreGit:
		var opts []gitstore.Option
		if cfg.Store.EncryptionKey != "" {
			sealer, err := crypto.NewSealer(cfg.Store.EncryptionKey)
			if err != nil {
				return domain.NewValidationError("store.encryption_key", err.Error())
			}
			opts = append(opts, gitstore.WithSealer(sealer))
		}
		s, err := gitstore.New(cfg.StorePath(c.DataDir, domain.GitStoreDir), cfg.Store.Namespace, opts...)
		if err != nil {
			return err
		}
		c.Tasks, c.StoreInitializer = s, s
	case domain.StoreBadger:
		s, err := badgerstore.Open(badgerstore.Config{
			Logger:     c.Logger.With("component", "badger"),
			Path:       cfg.StorePath(c.DataDir, domain.BadgerStoreDir),
			SyncWrites: true,
		})
		if err != nil {
			return err
		}
		c.Tasks, c.StoreInitializer = s, s
		c.closers = append(c.closers, s.Close)
	case domain.StorePostgres:
		// Table names are prefixed with the namespace.
		s, err := pgstore.Open(ctx, cfg.Store.DSN, cfg.Store.Namespace)
		if err != nil {
			return err
		}
		c.Tasks, c.StoreInitializer = s, s
		c.closers = append(c.closers, func() error { s.Close(); return nil })
	default:
		return domain.NewValidationError("store.type", fmt.Sprintf("unknown store %q", cfg.Store.Type))
	}
	c.Logger.Debug("store opened", "type", cfg.Store.Type)
	return nil
}

// NewWithDeps creates a new Container with custom dependencies for testing.
func NewWithDeps(appConfig *domain.Config, tasks domain.TaskRepository, storeInit domain.StoreInitializer, clock domain.Clock, logger *slog.Logger) *Container {
	dir := directory.NewStatic(appConfig)
	return &Container{
		Tasks:            tasks,
		StoreInitializer: storeInit,
		Clock:            clock,
		Settings:         dir,
		Users:            dir,
		Tags:             dir,
		TaskLog:          domain.NopLogger{},
		Logger:           logger,
		Metrics:          metrics.New(),
		AppConfig:        appConfig,
	}
}

// Close releases the store and log files.
func (c *Container) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// UseCase factory methods

// InitStoreUseCase returns a new InitStore use case.
func (c *Container) InitStoreUseCase() *usecase.InitStore {
	return usecase.NewInitStore(c.StoreInitializer, c.AppConfig, c.TaskLog)
}

// NewTaskUseCase returns a new NewTask use case.
func (c *Container) NewTaskUseCase() *usecase.NewTask {
	return usecase.NewNewTask(c.Tasks, c.Settings, c.Clock, c.TaskLog)
}

// EditTaskUseCase returns a new EditTask use case.
func (c *Container) EditTaskUseCase() *usecase.EditTask {
	return usecase.NewEditTask(c.Tasks, c.Settings, c.Clock, c.TaskLog)
}

// DeleteTaskUseCase returns a new DeleteTask use case.
func (c *Container) DeleteTaskUseCase() *usecase.DeleteTask {
	return usecase.NewDeleteTask(c.Tasks, c.Clock, c.TaskLog)
}

// CompleteTaskUseCase returns a new CompleteTask use case.
func (c *Container) CompleteTaskUseCase() *usecase.CompleteTask {
	return usecase.NewCompleteTask(c.Tasks, c.Settings, c.Clock, c.TaskLog)
}

// CheckCompletionUseCase returns a new CheckCompletion use case.
func (c *Container) CheckCompletionUseCase() *usecase.CheckCompletion {
	return usecase.NewCheckCompletion(c.Tasks, c.Settings, c.Clock)
}

// AddCommentUseCase returns a new AddComment use case.
func (c *Container) AddCommentUseCase() *usecase.AddComment {
	return usecase.NewAddComment(c.Tasks, c.Clock, c.TaskLog)
}

// GetCommentTreeUseCase returns a new GetCommentTree use case.
func (c *Container) GetCommentTreeUseCase() *usecase.GetCommentTree {
	return usecase.NewGetCommentTree(c.Tasks)
}

// GetHistoryUseCase returns a new GetHistory use case.
func (c *Container) GetHistoryUseCase() *usecase.GetHistory {
	return usecase.NewGetHistory(c.Tasks)
}

// AttachFileUseCase returns a new AttachFile use case.
func (c *Container) AttachFileUseCase() *usecase.AttachFile {
	return usecase.NewAttachFile(c.Tasks, c.Clock, c.TaskLog)
}

// ShowTaskUseCase returns a new ShowTask use case.
func (c *Container) ShowTaskUseCase() *usecase.ShowTask {
	return usecase.NewShowTask(c.Tasks)
}

// ListTasksUseCase returns a new ListTasks use case.
func (c *Container) ListTasksUseCase() *usecase.ListTasks {
	return usecase.NewListTasks(c.Tasks)
}

// DescribeChangeUseCase returns a new DescribeChange use case.
func (c *Container) DescribeChangeUseCase() *usecase.DescribeChange {
	return usecase.NewDescribeChange(c.Users, c.Tags)
}

// ShowConfigUseCase returns a new ShowConfig use case.
func (c *Container) ShowConfigUseCase() *usecase.ShowConfig {
	return usecase.NewShowConfig(c.ConfigLoader)
}
