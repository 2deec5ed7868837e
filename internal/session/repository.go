package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/medcampus/analytics-dashboard/internal/persist"
	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

type Repository interface {
	// LoadSession returns serviceerr.ErrNotFound when nobody is signed in.
	LoadSession(ctx context.Context) (Session, error)
	StoreSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context) error
}

type storeRepository struct {
	store persist.Store
}

// NewRepository keeps the session under the auth-storage key of store.
func NewRepository(store persist.Store) Repository {
	return &storeRepository{store: store}
}

func (r *storeRepository) LoadSession(ctx context.Context) (Session, error) {
	s, err := persist.Load[Session](ctx, r.store, persist.KeyAuth)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return Session{}, serviceerr.ErrNotFound
		}

		return Session{}, fmt.Errorf("loading session: %w", err)
	}

	if s.AccessToken == "" && s.RefreshToken == "" {
		return Session{}, serviceerr.ErrNotFound
	}

	return s, nil
}

func (r *storeRepository) StoreSession(ctx context.Context, s Session) error {
	if err := persist.Save(ctx, r.store, persist.KeyAuth, s); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	return nil
}

func (r *storeRepository) DeleteSession(ctx context.Context) error {
	if err := r.store.Delete(ctx, persist.KeyAuth); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}
