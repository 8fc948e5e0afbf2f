// Package kv persists guidedesk's client-side key/value state: the session
// role and name, the last sync time and the cached tour and guide lists.
// Values are opaque strings, mirroring browser local storage.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
)

// Store is the persisted client state shared by the cache, the session and
// the sync orchestrator.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

const defaultStateFile = "guidedesk/state.json"

// DefaultPath returns the state file under the XDG state directory.
func DefaultPath() (string, error) {
	path, err := xdg.StateFile(defaultStateFile)
	if err != nil {
		return "", fmt.Errorf("resolve state path: %w", err)
	}
	return path, nil
}

// FileStore keeps every key in a single JSON object file. Writers take an
// exclusive file lock and replace the file atomically so concurrent
// processes never observe a torn file; the last writer wins.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// OpenFile prepares a FileStore at path, or at DefaultPath when empty.
func OpenFile(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		resolved, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{path: abs, lock: flock.New(abs + ".lock")}, nil
}

// Path reports the backing file.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Get returns the value stored under key.
func (s *FileStore) Get(key string) (string, bool, error) {
	if s == nil {
		return "", false, fmt.Errorf("state store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return "", false, fmt.Errorf("lock state: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Set stores value under key.
func (s *FileStore) Set(key, value string) error {
	return s.update(func(values map[string]string) {
		values[key] = value
	})
}

// Delete removes keys. Missing keys are ignored.
func (s *FileStore) Delete(keys ...string) error {
	return s.update(func(values map[string]string) {
		for _, key := range keys {
			delete(values, key)
		}
	})
}

// Keys lists the stored keys in sorted order.
func (s *FileStore) Keys() ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock state: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	values, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) update(mutate func(map[string]string)) error {
	if s == nil {
		return fmt.Errorf("state store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock state: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	values, err := s.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking every write.
		values = map[string]string{}
	}
	mutate(values)
	return s.save(values)
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	values := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return values, nil
}

func (s *FileStore) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes keys.
func (s *MemoryStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}
