// Package config provides configuration loading functionality.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/runoshun/capsule/internal/domain"
)

// Ensure Loader implements domain.ConfigLoader.
var _ domain.ConfigLoader = (*Loader)(nil)

// Loader loads configuration from TOML files.
type Loader struct {
	dataDir       string // Path to the .capsule data directory
	globalConfDir string // Path to global config directory (e.g., ~/.config/capsule)
}

// NewLoader creates a new Loader.
func NewLoader(dataDir string) *Loader {
	return &Loader{
		dataDir:       dataDir,
		globalConfDir: defaultGlobalConfigDir(),
	}
}

// NewLoaderWithGlobalDir creates a new Loader with a custom global config directory.
// This is useful for testing.
func NewLoaderWithGlobalDir(dataDir, globalConfDir string) *Loader {
	return &Loader{
		dataDir:       dataDir,
		globalConfDir: globalConfDir,
	}
}

// defaultGlobalConfigDir returns the default global config directory.
func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return domain.GlobalConfigDir(configHome)
}

// Load returns the merged configuration.
// Merge order: default <- global <- data dir (later takes precedence).
// Keys absent from a file keep the value of the previous layer.
func (l *Loader) Load() (*domain.Config, error) {
	cfg := domain.NewDefaultConfig()
	for _, path := range []string{l.globalPath(), domain.DataConfigPath(l.dataDir)} {
		if path == "" {
			continue
		}
		if err := overlayFile(cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadGlobal returns defaults overlaid with the global configuration only.
// Returns os.ErrNotExist when there is no global config file.
func (l *Loader) LoadGlobal() (*domain.Config, error) {
	path := l.globalPath()
	if path == "" {
		return nil, os.ErrNotExist
	}
	cfg := domain.NewDefaultConfig()
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) globalPath() string {
	if l.globalConfDir == "" {
		return ""
	}
	return filepath.Join(l.globalConfDir, domain.ConfigFileName)
}

// overlayFile decodes path on top of cfg. Unknown keys do not fail the load;
// they are appended to cfg.Warnings.
func overlayFile(cfg *domain.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	warnings, err := overlay(cfg, data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, w := range warnings {
		cfg.Warnings = append(cfg.Warnings, path+": "+w)
	}
	return nil
}

// overlay decodes data on top of cfg and returns warnings for unknown keys.
func overlay(cfg *domain.Config, data []byte) ([]string, error) {
	// Slices are replaced, not appended to, by a later layer.
	var probe struct {
		Users *[]domain.User `toml:"users"`
		Tags  *[]domain.Tag  `toml:"tags"`
	}
	if err := toml.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Users != nil {
		cfg.Users = nil
	}
	if probe.Tags != nil {
		cfg.Tags = nil
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(cfg)
	if cfg.Settings.Orgs == nil {
		cfg.Settings.Orgs = make(map[string]domain.OrgSettings)
	}

	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		warnings := make([]string, 0, len(strict.Errors))
		for _, e := range strict.Errors {
			warnings = append(warnings, "unknown key "+strings.Join(e.Key(), "."))
		}
		sort.Strings(warnings)
		return warnings, nil
	}
	return nil, err
}
