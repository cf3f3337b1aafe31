package repository

import (
	"context"
	"database/sql"
	"errors"

	"duet-chat/internal/domain/user"
	duet_errors "duet-chat/pkg/errors"

	"github.com/google/uuid"
)

type PostgresUserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// Save inserts u, leaving an existing row with the same id or email untouched.
func (r *PostgresUserRepository) Save(ctx context.Context, u user.User) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO users (id, full_name, email, profile_pic, created_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT DO NOTHING
    `, u.ID, u.FullName, u.Email, u.ProfilePic, u.CreatedAt)
	return err
}

func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	var u user.User
	err := r.db.QueryRowContext(ctx, `
        SELECT id, full_name, email, profile_pic, created_at
        FROM users
        WHERE id = $1
    `, id).Scan(&u.ID, &u.FullName, &u.Email, &u.ProfilePic, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, duet_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *PostgresUserRepository) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]user.User, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, full_name, email, profile_pic, created_at
        FROM users
        WHERE id <> $1
        ORDER BY full_name ASC
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []user.User{}
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.ProfilePic, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
