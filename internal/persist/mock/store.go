package persistmock

import (
	"context"
	"sync"

	"github.com/medcampus/analytics-dashboard/internal/persist"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

type Store struct {
	mu      sync.Mutex
	Entries map[string][]byte

	getErr, setErr, deleteErr error
}

var _ persist.Store = (*Store)(nil)

type Option func(*Store)

func WithGetError(err error) Option {
	return func(s *Store) { s.getErr = err }
}

func WithSetError(err error) Option {
	return func(s *Store) { s.setErr = err }
}

func WithDeleteError(err error) Option {
	return func(s *Store) { s.deleteErr = err }
}

func WithEntry(key string, value []byte) Option {
	return func(s *Store) { s.Entries[key] = value }
}

func NewInMemStore(opts ...Option) *Store {
	s := &Store{Entries: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}

	v, ok := s.Entries[key]
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	return v, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setErr != nil {
		return s.setErr
	}

	s.Entries[key] = value

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}

	delete(s.Entries, key)

	return nil
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.Entries[key]

	return ok
}
