package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"duet-chat/internal/domain/user"
	duet_errors "duet-chat/pkg/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var userPrefix = []byte("user:")

type BadgerUserRepository struct {
	db *badger.DB
}

func NewBadgerUserRepository(db *badger.DB) *BadgerUserRepository {
	return &BadgerUserRepository{db: db}
}

func userKey(id uuid.UUID) []byte {
	return append(append([]byte{}, userPrefix...), id.String()...)
}

// Save inserts u unless a user with the same id is already stored.
func (r *BadgerUserRepository) Save(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		key := userKey(u.ID)
		if _, err := txn.Get(key); err == nil {
			return nil
		}
		return txn.Set(key, data)
	})
}

func (r *BadgerUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	var u user.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return user.User{}, duet_errors.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (r *BadgerUserRepository) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users := []user.User{}
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = userPrefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(userPrefix); it.ValidForPrefix(userPrefix); it.Next() {
			var u user.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &u)
			}); err != nil {
				return err
			}
			if u.ID != id {
				users = append(users, u)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}
