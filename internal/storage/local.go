package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"
)

// LocalStorage implements Storage using the local filesystem.
// Writes go through a temp file and rename, so a crash mid-write leaves
// the previous cart or draft set intact.
type LocalStorage struct {
	basePath string // Root directory (e.g., "./data")
	baseURL  string // URL prefix for serving files (e.g., "/files")
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  baseURL,
	}, nil
}

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Put atomically replaces the file at key.
func (s *LocalStorage) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	fullPath := s.path(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", wrapStorageError(err, codeInternal, "failed to create directory")
	}

	if err := atomic.WriteFile(fullPath, content); err != nil {
		return "", wrapStorageError(err, codeInternal, "failed to write file")
	}

	return s.URL(key), nil
}

// Get opens the file at key.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound(key)
		}
		return nil, wrapStorageError(err, codeInternal, "failed to open file")
	}

	return file, nil
}

// Delete removes the file at key.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return wrapStorageError(err, codeInternal, "failed to delete file")
	}

	return nil
}

// URL returns the public path for a file.
func (s *LocalStorage) URL(key string) string {
	return path.Join(s.baseURL, key)
}

// Exists checks if a file exists at key.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, wrapStorageError(err, codeInternal, "failed to check file existence")
	}

	return true, nil
}

// List returns the keys of all files under prefix, sorted.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.path(prefix)
	var keys []string

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, wrapStorageError(err, codeInternal, "failed to list files")
	}

	sort.Strings(keys)
	return keys, nil
}
