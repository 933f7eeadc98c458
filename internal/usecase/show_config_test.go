package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/capsule/internal/domain"
)

// fakeLoader is a test double for domain.ConfigLoader.
type fakeLoader struct {
	cfg *domain.Config
	err error
}

func (f *fakeLoader) Load() (*domain.Config, error)       { return f.cfg, f.err }
func (f *fakeLoader) LoadGlobal() (*domain.Config, error) { return f.cfg, f.err }

func TestShowConfig_Execute(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	cfg.Store.Type = domain.StorePostgres
	cfg.Store.DSN = "postgres://admin:secret@db/capsule"
	cfg.Store.EncryptionKey = strings.Repeat("ab", 32)
	cfg.Warnings = []string{"config.toml: unknown key colour"}
	uc := NewShowConfig(&fakeLoader{cfg: cfg})

	out, err := uc.Execute(context.Background())

	require.NoError(t, err)
	assert.NotContains(t, out.TOML, "secret")
	assert.NotContains(t, out.TOML, "abab")
	assert.Equal(t, cfg.Warnings, out.Warnings)
	assert.Equal(t, "postgres://admin:secret@db/capsule", cfg.Store.DSN, "the loaded config is not modified")

	var decoded domain.Config
	require.NoError(t, toml.Unmarshal([]byte(out.TOML), &decoded))
	assert.Equal(t, "********", decoded.Store.DSN)
	assert.Equal(t, "********", decoded.Store.EncryptionKey)
	assert.Equal(t, domain.StorePostgres, decoded.Store.Type)
	assert.True(t, decoded.Settings.BlockersEnabled)
}

func TestShowConfig_Execute_LoadError(t *testing.T) {
	boom := errors.New("bad toml")
	uc := NewShowConfig(&fakeLoader{err: boom})

	_, err := uc.Execute(context.Background())

	assert.ErrorIs(t, err, boom)
}
