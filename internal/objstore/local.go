package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects as files under a directory. It is meant for
// development, with the server exposing the directory at PublicBaseURL.
type LocalStore struct {
	dir        string
	publicBase string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir, publicBaseURL string) *LocalStore {
	return &LocalStore{dir: dir, publicBase: publicBaseURL}
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

// Head implements Store.
func (s *LocalStore) Head(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Get implements Store.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

// Put implements Store.
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("writing object %s: %w", key, err)
	}
	return s.URL(key), nil
}

// URL implements Store.
func (s *LocalStore) URL(key string) string { return joinURL(s.publicBase, key) }

// KeyFor implements Store.
func (s *LocalStore) KeyFor(url string) (string, bool) { return keyUnder(s.publicBase, url) }
