package repository

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"duet-chat/internal/domain/message"
	"duet-chat/internal/domain/user"
)

type MessageRepository interface {
	// Create persists m. CreatedAt is raised to the conversation's latest
	// createdAt when the clock would otherwise move backwards, and Seq is
	// assigned; both are written back into m.
	Create(ctx context.Context, m *message.Message) error
	// ListByConversation streams the conversation {a, b} ordered by
	// (createdAt, seq). Every range over the result re-reads the store.
	ListByConversation(ctx context.Context, a, b uuid.UUID) iter.Seq2[message.Message, error]
	// MarkSeen flags the given messages addressed to viewerID and returns
	// how many rows changed.
	MarkSeen(ctx context.Context, ids []uuid.UUID, viewerID uuid.UUID) (int64, error)
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (user.User, error)
	ListUsersExcept(ctx context.Context, id uuid.UUID) ([]user.User, error)
}
