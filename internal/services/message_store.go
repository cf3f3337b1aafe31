package services

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"duet-chat/internal/domain/message"
	"duet-chat/internal/repository"
	duet_errors "duet-chat/pkg/errors"

	"github.com/google/uuid"
)

// MessageStore is the only writer of messages. It validates input, assigns
// identity and timestamps, and hands the record to the repository.
type MessageStore struct {
	repo repository.MessageRepository
	now  func() time.Time
}

func NewMessageStore(repo repository.MessageRepository) *MessageStore {
	return &MessageStore{repo: repo, now: time.Now}
}

// Validate checks a submission without touching storage.
func Validate(senderID, receiverID uuid.UUID, text, image string) error {
	if senderID == uuid.Nil || receiverID == uuid.Nil {
		return fmt.Errorf("%w: sender and receiver are required", duet_errors.ErrValidation)
	}
	if senderID == receiverID {
		return fmt.Errorf("%w: cannot message yourself", duet_errors.ErrValidation)
	}
	if !message.HasContent(text, image) {
		return fmt.Errorf("%w: message needs text or an image", duet_errors.ErrValidation)
	}
	if len(text) > message.MaxTextBytes {
		return fmt.Errorf("%w: text exceeds %d bytes", duet_errors.ErrValidation, message.MaxTextBytes)
	}
	return nil
}

func (s *MessageStore) Create(ctx context.Context, senderID, receiverID uuid.UUID, text, image string) (message.Message, error) {
	text = strings.TrimSpace(text)
	image = strings.TrimSpace(image)
	if err := Validate(senderID, receiverID, text, image); err != nil {
		return message.Message{}, err
	}

	m := message.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		// postgres keeps microseconds; truncate so the returned value
		// matches what a later read produces
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.repo.Create(ctx, &m); err != nil {
		return message.Message{}, fmt.Errorf("persist message: %w", err)
	}
	return m, nil
}

// ListByConversation streams the conversation {a, b} oldest first.
func (s *MessageStore) ListByConversation(ctx context.Context, a, b uuid.UUID) iter.Seq2[message.Message, error] {
	return s.repo.ListByConversation(ctx, a, b)
}
