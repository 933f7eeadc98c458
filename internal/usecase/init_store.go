package usecase

import (
	"context"
	"fmt"
	"os"

	"github.com/runoshun/capsule/internal/domain"
)

// InitStoreInput contains the parameters for initializing a data directory.
type InitStoreInput struct {
	DataDir     string // Data directory to create
	WriteConfig bool   // Write a commented config.toml when none exists
}

// InitStoreOutput contains the result of initialization.
type InitStoreOutput struct {
	ConfigPath    string // Config file written (empty when skipped or present)
	StoreCreated  bool   // A new store was created
	ConfigCreated bool
}

// InitStore is the use case for creating the data directory and store.
type InitStore struct {
	store  domain.StoreInitializer
	config *domain.Config
	logger domain.Logger
}

// NewInitStore creates a new InitStore use case.
func NewInitStore(store domain.StoreInitializer, config *domain.Config, logger domain.Logger) *InitStore {
	return &InitStore{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Execute creates the data directory, the store and optionally the config
// file. Running it again is harmless.
func (uc *InitStore) Execute(ctx context.Context, in InitStoreInput) (*InitStoreOutput, error) {
	var out InitStoreOutput
	if in.DataDir != "" {
		if err := os.MkdirAll(in.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	created, err := uc.store.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	out.StoreCreated = created

	if in.WriteConfig && in.DataDir != "" {
		path := domain.DataConfigPath(in.DataDir)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			content := domain.RenderConfigTemplate(uc.config)
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				return nil, fmt.Errorf("write config: %w", err)
			}
			out.ConfigPath = path
			out.ConfigCreated = true
		}
	}

	if created {
		uc.logger.Info(0, "store", fmt.Sprintf("initialized %s store", uc.config.Store.Type))
	}
	return &out, nil
}
