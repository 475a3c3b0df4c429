package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EmailCache remembers the last email each client submitted.
type EmailCache interface {
	GetEmail(ctx context.Context, key string) (string, error)
	SetEmail(ctx context.Context, key, email string) error
}

type MemoryEmailCache struct {
	mu     sync.RWMutex
	emails map[string]string
}

func NewMemoryEmailCache() *MemoryEmailCache {
	return &MemoryEmailCache{emails: make(map[string]string)}
}

func (c *MemoryEmailCache) GetEmail(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.emails[key], nil
}

func (c *MemoryEmailCache) SetEmail(_ context.Context, key, email string) error {
	c.mu.Lock()
	c.emails[key] = email
	c.mu.Unlock()
	return nil
}

// FileEmailCache keeps every client's email in a single JSON object on disk.
type FileEmailCache struct {
	mu   sync.Mutex
	path string
}

func NewFileEmailCache(dir string) (*FileEmailCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create email cache dir: %w", err)
	}
	return &FileEmailCache{path: filepath.Join(dir, "ghola_user_email.json")}, nil
}

func (c *FileEmailCache) GetEmail(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	emails, err := c.read()
	if err != nil {
		return "", err
	}
	return emails[key], nil
}

func (c *FileEmailCache) SetEmail(_ context.Context, key, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	emails, err := c.read()
	if err != nil {
		emails = make(map[string]string)
	}
	emails[key] = email

	data, err := json.MarshalIndent(emails, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal emails: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write emails: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace emails: %w", err)
	}
	return nil
}

func (c *FileEmailCache) read() (map[string]string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read emails: %w", err)
	}
	emails := make(map[string]string)
	if err := json.Unmarshal(data, &emails); err != nil {
		return nil, fmt.Errorf("parse emails: %w", err)
	}
	return emails, nil
}
