package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist
	ErrNotFound = errors.New("object not found")

	// ErrInvalidPath is returned for paths that escape the storage root
	ErrInvalidPath = errors.New("invalid path")
)

// Storage interface for storing and retrieving saved screenshots
type Storage interface {
	// Write writes data to a path, replacing any existing object
	Write(ctx context.Context, path string, data []byte) error

	// Read reads data from a path
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete deletes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Prune deletes objects under dir older than maxAge
	Prune(ctx context.Context, dir string, maxAge time.Duration) (int, error)

	// Close releases the backend
	Close() error
}

// ObjectName returns the path a screenshot taken at t is saved under
func ObjectName(prefix string, t time.Time) string {
	name := t.UTC().Format("20060102-150405.000") + ".jpg"
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

// ContentType returns the MIME type for a stored path
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// LocalStorage implements Storage using local filesystem
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
	}, nil
}

// Write writes data to a file
func (s *LocalStorage) Write(ctx context.Context, path string, data []byte) error {
	fullPath, err := s.fullPath(path)
	if err != nil {
		return err
	}

	// Create parent directories
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file first so readers never see a partial image
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Read reads data from a file
func (s *LocalStorage) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

// Delete deletes a file
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.fullPath(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Prune deletes files under dir older than maxAge
func (s *LocalStorage) Prune(ctx context.Context, dir string, maxAge time.Duration) (int, error) {
	fullPath, err := s.fullPath(dir)
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fullPath, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to delete file: %w", err)
		}
		removed++
	}

	return removed, nil
}

// Close is a no-op for local storage
func (s *LocalStorage) Close() error {
	return nil
}

func (s *LocalStorage) fullPath(path string) (string, error) {
	if err := validObjectPath(path); err != nil {
		return "", err
	}
	if path == "" {
		return s.baseDir, nil
	}
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(s.baseDir, path), nil
}

// validObjectPath accepts "" (the root) and clean slash-separated relative
// paths that stay below it
func validObjectPath(path string) error {
	if path == "" {
		return nil
	}
	if path == "." || !fs.ValidPath(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}
