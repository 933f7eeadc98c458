package usecase

import (
	"context"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/runoshun/capsule/internal/domain"
)

const masked = "********"

// ShowConfigOutput contains the effective configuration.
type ShowConfigOutput struct {
	TOML     string   // Effective configuration encoded as TOML
	Warnings []string // Problems found while loading
}

// ShowConfig is the use case for displaying the effective configuration.
type ShowConfig struct {
	loader domain.ConfigLoader
}

// NewShowConfig creates a new ShowConfig use case.
func NewShowConfig(loader domain.ConfigLoader) *ShowConfig {
	return &ShowConfig{loader: loader}
}

// Execute loads and encodes the merged configuration. The store DSN and
// encryption key are masked.
func (uc *ShowConfig) Execute(_ context.Context) (*ShowConfigOutput, error) {
	cfg, err := uc.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	shown := *cfg
	if shown.Store.DSN != "" {
		shown.Store.DSN = masked
	}
	if shown.Store.EncryptionKey != "" {
		shown.Store.EncryptionKey = masked
	}
	data, err := toml.Marshal(shown)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return &ShowConfigOutput{TOML: string(data), Warnings: cfg.Warnings}, nil
}
