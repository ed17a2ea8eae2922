package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go-banking-client/internal/model"
)

// FileRecordStore keeps every record in one JSON object on disk. Writes go to
// a temp file that is renamed over the original.
type FileRecordStore struct {
	path string
	mu   sync.Mutex
}

func NewFileRecordStore(path string) (*FileRecordStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("record file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("prepare record directory: %w", err)
	}

	return &FileRecordStore{path: path}, nil
}

func (s *FileRecordStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	value, ok := records[key]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	return []byte(value), nil
}

func (s *FileRecordStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		slog.Warn("client storage file unreadable; starting a fresh one", "path", s.path, "error", err)
		records = map[string]string{}
	}

	records[key] = string(value)
	return s.saveLocked(records)
}

func (s *FileRecordStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		slog.Warn("client storage file unreadable; starting a fresh one", "path", s.path, "error", err)
		records = map[string]string{}
	} else if _, ok := records[key]; !ok {
		return nil
	}

	delete(records, key)
	return s.saveLocked(records)
}

func (s *FileRecordStore) Close() error {
	return nil
}

func (s *FileRecordStore) loadLocked() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client storage: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]string{}, nil
	}

	records := map[string]string{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode client storage: %w", err)
	}
	return records, nil
}

func (s *FileRecordStore) saveLocked(records map[string]string) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".client-storage-*")
	if err != nil {
		return fmt.Errorf("create temp client storage: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write client storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close client storage: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace client storage: %w", err)
	}
	return nil
}
