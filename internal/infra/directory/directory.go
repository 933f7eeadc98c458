// Package directory provides config-backed implementations of the user, tag
// and settings ports.
package directory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/runoshun/capsule/internal/domain"
)

var (
	_ domain.UserDirectory    = (*Static)(nil)
	_ domain.TagDirectory     = (*Static)(nil)
	_ domain.SettingsProvider = (*Static)(nil)
)

// Static answers directory lookups from a fixed configuration.
// Safe for concurrent use.
type Static struct {
	users    map[string]domain.User
	tags     map[string]domain.Tag
	settings domain.SettingsConfig
	mu       sync.RWMutex
}

// NewStatic builds a directory from cfg. Later duplicates of an id win.
func NewStatic(cfg *domain.Config) *Static {
	s := &Static{}
	s.Reload(cfg)
	return s
}

// Reload replaces the directory contents.
func (s *Static) Reload(cfg *domain.Config) {
	users := make(map[string]domain.User, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.ID] = u
	}
	tags := make(map[string]domain.Tag, len(cfg.Tags))
	for _, t := range cfg.Tags {
		tags[t.ID] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.tags = tags
	s.settings = cfg.Settings
}

// GetUser returns the user with id, or nil when unknown.
func (s *Static) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// ListUsers returns every user ordered by name, then id.
func (s *Static) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.User) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// GetTag returns the tag with id, or nil when unknown.
func (s *Static) GetTag(_ context.Context, id string) (*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ListTags returns the tags of an organization ordered by name, then id.
// An empty orgID lists every tag.
func (s *Static) ListTags(_ context.Context, orgID string) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		if orgID == "" || t.OrgID == orgID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Tag) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// GetSettings resolves the gate settings of an organization.
func (s *Static) GetSettings(_ context.Context, orgID string) (domain.GateSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ForOrg(orgID), nil
}
