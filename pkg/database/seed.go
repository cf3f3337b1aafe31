package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"duet-chat/internal/domain/user"

	"github.com/google/uuid"
)

type UserSaver interface {
	Save(ctx context.Context, u user.User) error
}

// SeedConfig holds the accounts created by the development seed.
type SeedConfig struct {
	Names  []string
	Domain string
}

func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Names:  []string{"Alice Martin", "Bob Chen", "Carol Diaz", "Dan Okafor"},
		Domain: "duet.local",
	}
}

// SeedUserID derives a stable id from the email so reseeding is a no-op.
func SeedUserID(email string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email))
}

func DevUsers(cfg *SeedConfig) []user.User {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	users := make([]user.User, 0, len(cfg.Names))
	for _, name := range cfg.Names {
		email := fmt.Sprintf("%s@%s", emailLocalPart(name), cfg.Domain)
		users = append(users, user.User{
			ID:        SeedUserID(email),
			FullName:  name,
			Email:     email,
			CreatedAt: now,
		})
	}
	return users
}

// SeedDevelopment saves the development accounts. Existing ids are left alone.
func SeedDevelopment(ctx context.Context, saver UserSaver, cfg *SeedConfig) ([]user.User, error) {
	users := DevUsers(cfg)
	for _, u := range users {
		if err := saver.Save(ctx, u); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		log.Printf("seeded user %s (%s)", u.Email, u.ID)
	}
	return users, nil
}

func emailLocalPart(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '.')
		}
	}
	return string(out)
}
