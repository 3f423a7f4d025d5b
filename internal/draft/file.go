package draft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON file per module under a drafts directory. Writes
// are atomic (temp file + rename) so a crash mid-save never corrupts an
// existing draft. Drafts persist until a successful submission clears them.
type FileStore struct {
	dir string
}

// NewFileStore creates the drafts directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create draft dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path mirrors the key shape the browser client used in localStorage.
func (s *FileStore) path(moduleID string) string {
	// Module ids are slugs, but never trust them as path components.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(moduleID)
	return filepath.Join(s.dir, "test_"+safe+"_answers.json")
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, moduleID string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(moduleID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read draft: %w", err)
	}
	return data, true, nil
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, moduleID string, data []byte) error {
	target := s.path(moduleID)
	tmp, err := os.CreateTemp(s.dir, ".draft-*")
	if err != nil {
		return fmt.Errorf("create temp draft: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write draft: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close draft: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename draft: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(_ context.Context, moduleID string) error {
	if err := os.Remove(s.path(moduleID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove draft: %w", err)
	}
	return nil
}

// Close implements Store. The file backend holds no open resources.
func (s *FileStore) Close() error { return nil }
