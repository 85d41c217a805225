package chat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileStore keeps each history in its own JSON file under dir.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates a Store writing to dir.
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}
}

// FileName returns the file name used for a history.
func FileName(userID string, kind Kind) string {
	return fmt.Sprintf("%s--%s-chat-history.json", strings.TrimSpace(userID), kind)
}

func (s *FileStore) path(userID string, kind Kind) string {
	return filepath.Join(s.dir, FileName(userID, kind))
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, userID string, kind Kind) (*History, error) {
	if err := checkKey(userID, kind); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(userID, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return NewHistory(userID, kind), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chat history: %w", err)
	}
	return decode(data, userID, kind, s.logger), nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, h *History) error {
	data, err := encode(h)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}

	target := s.path(h.UserID, h.Kind)
	tmp, err := os.CreateTemp(s.dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing chat history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing chat history: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replacing chat history: %w", err)
	}
	return nil
}
