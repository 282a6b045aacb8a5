package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/launchkit/launchkit/internal/port"
)

// Manager handles local filesystem operations under a download root
type Manager struct {
	rootDir string
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root dir: %w", err)
	}
	return &Manager{rootDir: abs}, nil
}

// RootDir returns the download root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// Resolve places relative paths under the root directory
func (m *Manager) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(m.rootDir, path)
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0755)
}

// Create creates or truncates a file for positioned writes
func (m *Manager) Create(path string) (port.OutputFile, error) {
	path = m.Resolve(path)
	if err := m.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("failed to create parent dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return f, nil
}

// Remove deletes a file
func (m *Manager) Remove(path string) error {
	if err := os.Remove(m.Resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(m.Resolve(path))
	return err == nil
}

// FileSize returns the size of a file
func (m *Manager) FileSize(path string) (int64, error) {
	info, err := os.Stat(m.Resolve(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// CleanEmptyDirs removes empty directories under root, deepest first
func (m *Manager) CleanEmptyDirs() error {
	var dirs []string
	err := filepath.WalkDir(m.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != m.rootDir {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i]) // Will only succeed if empty
	}
	return nil
}
