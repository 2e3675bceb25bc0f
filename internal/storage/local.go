package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore writes archives to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  prefix,
	}, nil
}

func (s *LocalStore) path(ref ArchiveRef) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(ref.Path(s.prefix)))
}

// Put writes an archive atomically using a temp file and rename.
func (s *LocalStore) Put(ctx context.Context, ref ArchiveRef, data []byte) error {
	path := s.path(ref)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	return nil
}

// Get reads a stored archive.
func (s *LocalStore) Get(ctx context.Context, ref ArchiveRef) ([]byte, error) {
	data, err := os.ReadFile(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return data, nil
}

// Exists checks if an archive file exists.
func (s *LocalStore) Exists(ctx context.Context, ref ArchiveRef) (bool, error) {
	_, err := os.Stat(s.path(ref))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// List returns slash-separated keys under prefix, skipping temp files.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.baseDir, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// URI returns a file:// URI for the given key.
func (s *LocalStore) URI(key string) string {
	abs, err := filepath.Abs(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err != nil {
		abs = filepath.Join(s.baseDir, key)
	}
	return "file://" + filepath.ToSlash(abs)
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
