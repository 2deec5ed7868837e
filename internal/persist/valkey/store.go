package persistvalkey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/medcampus/analytics-dashboard/internal/persist"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

const objectTypeStorage = "storage"

var (
	ErrGetValue    = errors.New("getting value from store")
	ErrSetValue    = errors.New("setting value into storage")
	ErrDeleteValue = errors.New("deleting value from store")
)

type Store struct {
	valkey valkey.Client
	prefix string
}

var _ persist.Store = (*Store)(nil)

func NewStore(valkeyClient valkey.Client, prefix string) *Store {
	return &Store{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(key)).Build()).AsBytes()
	if err != nil {
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return nil, errors.Join(ErrGetValue, serviceerr.ErrNotFound)
		}

		return nil, errors.Join(ErrGetValue, fmt.Errorf("executing get command: %w", err))
	}

	return bytes, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.valkey.B().Set().Key(s.key(key)).Value(valkey.BinaryString(value)).Build()
	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return errors.Join(ErrSetValue, fmt.Errorf("executing set command: %w", err))
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(key)).Build()).Error(); err != nil {
		return errors.Join(ErrDeleteValue, fmt.Errorf("executing del command: %w", err))
	}

	return nil
}

func (s *Store) key(key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectTypeStorage, key)
}
