package services

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkspaceManager owns the local CRAB work areas. Each request gets
// baseDir/{workArea}, holding the rendered configuration and dry run outputs.
type WorkspaceManager struct {
	baseDir string
}

func NewWorkspaceManager(baseDir string) *WorkspaceManager {
	if baseDir == "" {
		baseDir = "."
	}
	return &WorkspaceManager{
		baseDir: baseDir,
	}
}

// PrepareWorkArea creates the work area directory and returns its path
func (s *WorkspaceManager) PrepareWorkArea(workArea string) (string, error) {
	path := s.GetPath(workArea)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create work area: %w", err)
	}
	return path, nil
}

// CleanupWorkArea removes the work area directory
func (s *WorkspaceManager) CleanupWorkArea(workArea string) error {
	return os.RemoveAll(s.GetPath(workArea))
}

// GetPath returns the absolute path for a work area
func (s *WorkspaceManager) GetPath(workArea string) string {
	path := filepath.Join(s.baseDir, workArea)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
