// Package security confines user supplied report paths to a single directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the report directory
var ErrOutsideRoot = errors.New("path is outside the report directory")

// PathValidator resolves report paths against a root directory
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at dir. The directory must exist;
// its symlinks are resolved once here.
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, fmt.Errorf("report directory cannot be empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve report directory: %w", err)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot access report directory %s: %w", dir, err)
	}

	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("cannot access report directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("report directory is not a directory: %s", dir)
	}

	return &PathValidator{root: filepath.Clean(real)}, nil
}

// Root returns the resolved report directory
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve returns the absolute, symlink-free form of path. Relative paths are taken
// relative to the root. Paths that resolve outside the root are rejected, including
// through symlinks.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	clean := filepath.Clean(path)

	real, err := filepath.EvalSymlinks(clean)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		// let the loader report the missing file
		real = clean
	default:
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !v.within(real) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	return real, nil
}

func (v *PathValidator) within(path string) bool {
	if path == v.root {
		return true
	}
	prefix := v.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
