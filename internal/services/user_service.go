package services

import (
	"context"
	"errors"

	"duet-chat/internal/domain/user"
	"duet-chat/internal/repository"
	duet_errors "duet-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserCache is an optional read-through cache in front of the user store.
// A miss is (nil, nil).
type UserCache interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error)
	SetUser(ctx context.Context, u user.User) error
}

// UserDirectory answers "does this user exist" for message targets and
// lists conversation partners for the sidebar.
type UserDirectory struct {
	repo  repository.UserRepository
	cache UserCache
	log   *zap.Logger
}

func NewUserDirectory(repo repository.UserRepository, cache UserCache, log *zap.Logger) *UserDirectory {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserDirectory{repo: repo, cache: cache, log: log}
}

func (d *UserDirectory) GetUser(ctx context.Context, id uuid.UUID) (user.User, error) {
	if id == uuid.Nil {
		return user.User{}, duet_errors.ErrNotFound
	}
	if d.cache != nil {
		cached, err := d.cache.GetUser(ctx, id)
		if err != nil {
			// cache trouble never fails a lookup
			d.log.Warn("user cache read failed", zap.String("user_id", id.String()), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	u, err := d.repo.GetUserByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if d.cache != nil {
		if err := d.cache.SetUser(ctx, u); err != nil {
			d.log.Warn("user cache write failed", zap.String("user_id", id.String()), zap.Error(err))
		}
	}
	return u, nil
}

func (d *UserDirectory) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := d.GetUser(ctx, id)
	if errors.Is(err, duet_errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Partners lists every user except viewerID.
func (d *UserDirectory) Partners(ctx context.Context, viewerID uuid.UUID) ([]user.User, error) {
	return d.repo.ListUsersExcept(ctx, viewerID)
}
