package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]int64)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.logs[key]...), nil
}

func (s *MemoryStore) Save(_ context.Context, key string, timestamps []int64) error {
	s.mu.Lock()
	s.logs[key] = append([]int64(nil), timestamps...)
	s.mu.Unlock()
	return nil
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FileStore keeps one JSON array per client under dir, the on-disk counterpart of browser local storage.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create timestamp dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, "ghola_request_timestamps_"+unsafeKeyChars.ReplaceAllString(key, "_")+".json")
}

func (s *FileStore) Load(_ context.Context, key string) ([]int64, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read timestamps: %w", err)
	}
	var timestamps []int64
	if err := json.Unmarshal(data, &timestamps); err != nil {
		_ = os.Remove(s.path(key))
		return nil, fmt.Errorf("parse timestamps: %w", err)
	}
	return timestamps, nil
}

func (s *FileStore) Save(_ context.Context, key string, timestamps []int64) error {
	if timestamps == nil {
		timestamps = []int64{}
	}
	data, err := json.Marshal(timestamps)
	if err != nil {
		return fmt.Errorf("marshal timestamps: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".timestamps-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write timestamps: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace timestamps: %w", err)
	}
	return nil
}
