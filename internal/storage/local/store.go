// Package local implements artifact storage on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the root every artifact path must live under.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes artifacts to the local filesystem.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed store rooted at cfg.BaseDir, creating the
// directory when missing and verifying it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// EnsureDir creates dir and its parents. Existing directories are fine.
func (s *Store) EnsureDir(_ context.Context, dir string) error {
	clean, err := s.resolve(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(clean, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// WriteFile replaces the file at path with data. The write goes through a
// temporary file in the same directory so readers never see a partial
// artifact.
func (s *Store) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	clean, err := s.resolve(path)
	if err != nil {
		return err
	}
	if clean == s.baseDir {
		return fmt.Errorf("path %q is the base directory", path)
	}
	dir := filepath.Dir(clean)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, clean); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// resolve cleans path and rejects anything outside the base directory.
// Relative paths are accepted either already prefixed with the base
// directory or relative to it.
func (s *Store) resolve(path string) (string, error) {
	clean := filepath.Clean(path)
	if !within(s.baseDir, clean) && !filepath.IsAbs(clean) {
		clean = filepath.Join(s.baseDir, path)
	}
	if !within(s.baseDir, clean) {
		return "", fmt.Errorf("path traversal detected")
	}
	return clean, nil
}

func within(base, path string) bool {
	return path == base || strings.HasPrefix(path, base+string(filepath.Separator))
}
