// Package jsonfile implements persist.Store on top of a single JSON file.
// The file maps storage keys to their JSON blobs, the way a browser's local
// storage maps keys to strings. Access is serialized with an in-process
// RWMutex and an flock on a sibling lock file so several CLI invocations can
// share one file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/medcampus/analytics-dashboard/internal/persist"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

type file struct {
	Entries map[string]json.RawMessage `json:"entries"`
}

type Store struct {
	path string
	mu   sync.RWMutex
}

var _ persist.Store = (*Store)(nil)

// NewStore creates a store at path. Environment variables in path are expanded.
func NewStore(path string) *Store {
	return &Store{path: os.ExpandEnv(path)}
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

func (s *Store) withFileLock(lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value json.RawMessage
	err := s.withFileLock(syscall.LOCK_SH, func() error {
		f, err := s.load()
		if err != nil {
			return err
		}

		var ok bool
		value, ok = f.Entries[key]
		if !ok {
			return serviceerr.ErrNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %s is not valid JSON", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(syscall.LOCK_EX, func() error {
		f, err := s.load()
		if err != nil {
			return err
		}

		f.Entries[key] = json.RawMessage(value)

		return s.save(f)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(syscall.LOCK_EX, func() error {
		f, err := s.load()
		if err != nil {
			return err
		}

		if _, ok := f.Entries[key]; !ok {
			return nil
		}

		delete(f.Entries, key)

		return s.save(f)
	})
}

func (s *Store) load() (file, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return file{Entries: make(map[string]json.RawMessage)}, nil
	}
	if err != nil {
		return file{}, fmt.Errorf("read storage file: %w", err)
	}

	var f file
	if len(data) > 0 {
		if err := json.Unmarshal(data, &f); err != nil {
			return file{}, fmt.Errorf("parse storage file: %w", err)
		}
	}
	if f.Entries == nil {
		f.Entries = make(map[string]json.RawMessage)
	}

	return f, nil
}

// save writes via a temp file and rename so readers never see a partial file.
func (s *Store) save(f file) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal storage file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
