package domain

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"text/template"
)

//go:embed config_template.toml
var configTemplateContent string

// Config represents the application configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Settings SettingsConfig `toml:"settings"`
	Users    []User         `toml:"users"`
	Tags     []Tag          `toml:"tags"`
	Warnings []string       `toml:"-"`
	Store    StoreConfig    `toml:"store"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// StoreType selects the persistence backend.
type StoreType string

// Supported store backends.
const (
	StoreJSON     StoreType = "json"
	StoreGit      StoreType = "git"
	StoreBadger   StoreType = "badger"
	StorePostgres StoreType = "postgres"
)

// AllStoreTypes returns all supported store backends.
func AllStoreTypes() []StoreType {
	return []StoreType{StoreJSON, StoreGit, StoreBadger, StorePostgres}
}

// IsValid returns true if the store type is supported.
func (s StoreType) IsValid() bool {
	switch s {
	case StoreJSON, StoreGit, StoreBadger, StorePostgres:
		return true
	default:
		return false
	}
}

// StoreConfig holds settings from the [store] section.
type StoreConfig struct {
	Type      StoreType `toml:"type,omitempty"`      // json (default), git, badger, postgres
	Path      string    `toml:"path,omitempty"`      // Store location, relative to the data dir when not absolute
	DSN       string    `toml:"dsn,omitempty"`       // PostgreSQL connection string
	Namespace string    `toml:"namespace,omitempty"` // Git ref namespace (default: "capsule")
	// Hex AES-256 key sealing git store blobs (git store only)
	EncryptionKey string `toml:"encryption_key,omitempty"`
}

// SettingsConfig holds gate settings from the [settings] section, with
// per-organization overrides in [settings.orgs.<id>].
type SettingsConfig struct {
	Orgs            map[string]OrgSettings `toml:"orgs,omitempty"`
	SubtasksEnabled bool                   `toml:"subtasks_enabled"`
	BlockersEnabled bool                   `toml:"blockers_enabled"`
}

// OrgSettings overrides gate settings for one organization. Unset fields
// inherit the [settings] values.
type OrgSettings struct {
	SubtasksEnabled *bool `toml:"subtasks_enabled,omitempty"`
	BlockersEnabled *bool `toml:"blockers_enabled,omitempty"`
}

// ForOrg resolves the gate settings of an organization.
func (s SettingsConfig) ForOrg(orgID string) GateSettings {
	out := GateSettings{SubtasksEnabled: s.SubtasksEnabled, BlockersEnabled: s.BlockersEnabled}
	org, ok := s.Orgs[orgID]
	if !ok {
		return out
	}
	if org.SubtasksEnabled != nil {
		out.SubtasksEnabled = *org.SubtasksEnabled
	}
	if org.BlockersEnabled != nil {
		out.BlockersEnabled = *org.BlockersEnabled
	}
	return out
}

// ServerConfig holds HTTP server settings from the [server] section.
type ServerConfig struct {
	Addr          string `toml:"addr,omitempty"`           // Listen address
	RetryAttempts int    `toml:"retry_attempts,omitempty"` // Attempts per request on concurrent modification
	Metrics       bool   `toml:"metrics"`                  // Expose /metrics
}

// LogConfig holds logging settings from [log] section.
type LogConfig struct {
	Level string `toml:"level,omitempty"` // Log level: debug, info, warn, error
}

// Default configuration values.
const (
	DefaultLogLevel      = "info"
	DefaultStoreType     = StoreJSON
	DefaultNamespace     = "capsule"
	DefaultServerAddr    = ":8080"
	DefaultRetryAttempts = 3
)

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Type:      DefaultStoreType,
			Namespace: DefaultNamespace,
		},
		Settings: SettingsConfig{
			SubtasksEnabled: true,
			BlockersEnabled: true,
			Orgs:            make(map[string]OrgSettings),
		},
		Server: ServerConfig{
			Addr:          DefaultServerAddr,
			RetryAttempts: DefaultRetryAttempts,
			Metrics:       true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Validate checks values that cannot be fixed by defaults.
func (c *Config) Validate() error {
	if !c.Store.Type.IsValid() {
		return NewValidationError("store.type", fmt.Sprintf("unknown store %q", c.Store.Type))
	}
	if c.Store.Type == StorePostgres && c.Store.DSN == "" {
		return NewValidationError("store.dsn", "required for the postgres store")
	}
	if k := c.Store.EncryptionKey; k != "" {
		if b, err := hex.DecodeString(k); err != nil || len(b) != 32 {
			return NewValidationError("store.encryption_key", "must be 64 hex characters")
		}
	}
	if c.Server.RetryAttempts < 1 {
		return NewValidationError("server.retry_attempts", "must be at least 1")
	}
	return nil
}

// StorePath resolves the configured store location against dataDir.
// An empty path yields def inside dataDir.
func (c *Config) StorePath(dataDir, def string) string {
	switch {
	case c.Store.Path == "":
		return filepath.Join(dataDir, def)
	case filepath.IsAbs(c.Store.Path):
		return c.Store.Path
	default:
		return filepath.Join(dataDir, c.Store.Path)
	}
}

// templateData holds all data for rendering the config template.
type templateData struct {
	StoreType       StoreType
	Namespace       string
	ServerAddr      string
	LogLevel        string
	RetryAttempts   int
	SubtasksEnabled bool
	BlockersEnabled bool
	Metrics         bool
}

// RenderConfigTemplate renders a commented config file from cfg.
func RenderConfigTemplate(cfg *Config) string {
	data := templateData{
		StoreType:       cfg.Store.Type,
		Namespace:       cfg.Store.Namespace,
		ServerAddr:      cfg.Server.Addr,
		LogLevel:        cfg.Log.Level,
		RetryAttempts:   cfg.Server.RetryAttempts,
		SubtasksEnabled: cfg.Settings.SubtasksEnabled,
		BlockersEnabled: cfg.Settings.BlockersEnabled,
		Metrics:         cfg.Server.Metrics,
	}

	tmpl, err := template.New("config").Delims("<<", ">>").Parse(configTemplateContent)
	if err != nil {
		// Should never happen with embedded template
		panic(fmt.Sprintf("failed to parse config template: %v", err))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Should never happen with valid data
		panic(fmt.Sprintf("failed to execute config template: %v", err))
	}

	return buf.String()
}
