package persistsql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcampus/analytics-dashboard/internal/persist"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

// Store keeps the storage blobs in the client_storage table. Keys are
// namespaced with prefix so several dashboards can share a database.
type Store struct {
	db     *pgxpool.Pool
	prefix string
}

var _ persist.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool, prefix string) *Store {
	return &Store{
		db:     db,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.db.QueryRow(ctx, `SELECT value FROM client_storage WHERE key = $1;`, s.key(key)).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serviceerr.ErrNotFound
		}

		return nil, fmt.Errorf("selecting from client_storage: %w", err)
	}

	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.Exec(ctx, `INSERT INTO client_storage (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key)
	DO UPDATE SET (value, updated_at) = (EXCLUDED.value, EXCLUDED.updated_at);`,
		s.key(key), value,
	); err != nil {
		return fmt.Errorf("upserting into client_storage: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM client_storage WHERE key = $1;`, s.key(key)); err != nil {
		return fmt.Errorf("deleting from client_storage: %w", err)
	}

	return nil
}

func (s *Store) key(key string) string {
	return s.prefix + ":" + key
}
