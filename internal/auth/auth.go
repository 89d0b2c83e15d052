// Package auth holds the signed-in user's session and talks to the account endpoints.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNotAuthenticated is returned when an operation requires a signed-in user
var ErrNotAuthenticated = errors.New("not signed in: run 'cardiopredict login' first")

// Context is the session passed explicitly to components that need the caller's
// identity.
type Context struct {
	Token    string `yaml:"token" json:"token"`
	Username string `yaml:"username" json:"username"`
	Email    string `yaml:"email,omitempty" json:"email,omitempty"`
}

// Authenticated reports whether the context carries a token. A nil context is
// not authenticated.
func (c *Context) Authenticated() bool {
	return c != nil && c.Token != ""
}

// Require returns ErrNotAuthenticated unless c is authenticated
func (c *Context) Require() error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Store persists a single session to a YAML file readable only by its owner.
type Store struct {
	path string
}

// NewStore returns a Store backed by path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored session. A missing file yields an empty, unauthenticated
// context and no error.
func (s *Store) Load() (*Context, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Context{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var ctx Context
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", s.path, err)
	}
	return &ctx, nil
}

// Save writes the session, replacing any previous one
func (s *Store) Save(ctx *Context) error {
	if !ctx.Authenticated() {
		return errors.New("refusing to save a session without a token")
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an absent session is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
