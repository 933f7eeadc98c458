package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, StoreJSON, cfg.Store.Type)
	assert.Equal(t, DefaultNamespace, cfg.Store.Namespace)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultRetryAttempts, cfg.Server.RetryAttempts)
	assert.True(t, cfg.Server.Metrics)
	assert.True(t, cfg.Settings.SubtasksEnabled)
	assert.True(t, cfg.Settings.BlockersEnabled)
	assert.NotNil(t, cfg.Settings.Orgs)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"unknown store", func(c *Config) { c.Store.Type = "sqlite" }, "store.type"},
		{"postgres without dsn", func(c *Config) { c.Store.Type = StorePostgres }, "store.dsn"},
		{"zero retries", func(c *Config) { c.Server.RetryAttempts = 0 }, "server.retry_attempts"},
		{"short encryption key", func(c *Config) { c.Store.EncryptionKey = "00ff" }, "store.encryption_key"},
		{"non-hex encryption key", func(c *Config) { c.Store.EncryptionKey = strings.Repeat("zz", 32) }, "store.encryption_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSettingsConfig_ForOrg(t *testing.T) {
	off := false
	s := SettingsConfig{
		SubtasksEnabled: true,
		BlockersEnabled: true,
		Orgs: map[string]OrgSettings{
			"acme": {BlockersEnabled: &off},
		},
	}

	assert.Equal(t, GateSettings{SubtasksEnabled: true, BlockersEnabled: true}, s.ForOrg(""))
	assert.Equal(t, GateSettings{SubtasksEnabled: true, BlockersEnabled: true}, s.ForOrg("other"))
	assert.Equal(t, GateSettings{SubtasksEnabled: true, BlockersEnabled: false}, s.ForOrg("acme"))
}

func TestConfig_StorePath(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, "/data/tasks.json", cfg.StorePath("/data", JSONStoreFile))

	cfg.Store.Path = "custom.json"
	assert.Equal(t, "/data/custom.json", cfg.StorePath("/data", JSONStoreFile))

	cfg.Store.Path = "/var/lib/capsule"
	assert.Equal(t, "/var/lib/capsule", cfg.StorePath("/data", JSONStoreFile))
}

func TestRenderConfigTemplate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Store.Type = StoreBadger
	cfg.Settings.BlockersEnabled = false

	out := RenderConfigTemplate(cfg)

	assert.True(t, strings.HasPrefix(out, "# capsule configuration"))
	assert.Contains(t, out, `type = "badger"`)
	assert.Contains(t, out, "blockers_enabled = false")

	// The rendered template must be valid TOML that decodes back into the same values.
	parsed := NewDefaultConfig()
	require.NoError(t, toml.Unmarshal([]byte(out), parsed))
	assert.Equal(t, StoreBadger, parsed.Store.Type)
	assert.True(t, parsed.Settings.SubtasksEnabled)
	assert.False(t, parsed.Settings.BlockersEnabled)
	assert.Equal(t, DefaultServerAddr, parsed.Server.Addr)
}
