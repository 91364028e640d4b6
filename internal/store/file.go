package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the mapping in memory and snapshots it to a JSON file on
// every change so a single instance survives restarts.
type FileStore struct {
	path    string
	mu      sync.RWMutex
	threads map[string]string
}

func NewFileStore(path string) (*FileStore, error) {
	f := &FileStore{path: path, threads: make(map[string]string)}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(b, &f.threads); err != nil {
		return nil, fmt.Errorf("invalid session file %s: %w", path, err)
	}
	return f, nil
}

func (f *FileStore) GetThread(_ context.Context, conversationID string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id, ok := f.threads[conversationID]
	return id, ok, nil
}

func (f *FileStore) SetThread(_ context.Context, conversationID, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[conversationID] = threadID
	return f.writeLocked()
}

func (f *FileStore) DeleteThread(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.threads[conversationID]; !ok {
		return nil
	}
	delete(f.threads, conversationID)
	return f.writeLocked()
}

func (f *FileStore) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(f.threads, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
