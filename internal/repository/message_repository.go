package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"duet-chat/internal/domain/message"
	duet_errors "duet-chat/pkg/errors"

	"github.com/google/uuid"
)

type postgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &postgresMessageRepository{db: db}
}

const messageColumns = `id, sender_id, receiver_id, text, image, created_at, seen, seq`

func (r *postgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	key := message.ConversationKey(m.SenderID, m.ReceiverID)
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		// Serialises writers of one conversation so createdAt never goes backwards.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}

		var last sql.NullTime
		if err := tx.QueryRowContext(ctx, `
            SELECT MAX(created_at) FROM messages WHERE conversation_key = $1
        `, key).Scan(&last); err != nil {
			return err
		}
		m.CreatedAt = notBefore(m.CreatedAt, last)

		return tx.QueryRowContext(ctx, `
            INSERT INTO messages (id, conversation_key, sender_id, receiver_id, text, image, created_at, seen)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
            RETURNING seq
        `,
			m.ID,
			key,
			m.SenderID,
			m.ReceiverID,
			m.Text,
			m.Image,
			m.CreatedAt,
			m.Seen,
		).Scan(&m.Seq)
	})
	if isCheckViolation(err) {
		return fmt.Errorf("%w: %v", duet_errors.ErrValidation, err)
	}
	return err
}

func (r *postgresMessageRepository) ListByConversation(ctx context.Context, a, b uuid.UUID) iter.Seq2[message.Message, error] {
	key := message.ConversationKey(a, b)
	return func(yield func(message.Message, error) bool) {
		rows, err := r.db.QueryContext(ctx, `
            SELECT `+messageColumns+`
            FROM messages
            WHERE conversation_key = $1
            ORDER BY created_at ASC, seq ASC
        `, key)
		if err != nil {
			yield(message.Message{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var m message.Message
			if err := rows.Scan(
				&m.ID,
				&m.SenderID,
				&m.ReceiverID,
				&m.Text,
				&m.Image,
				&m.CreatedAt,
				&m.Seen,
				&m.Seq,
			); err != nil {
				yield(message.Message{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(message.Message{}, err)
		}
	}
}

func (r *postgresMessageRepository) MarkSeen(ctx context.Context, ids []uuid.UUID, viewerID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, viewerID)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := r.db.ExecContext(ctx, `
        UPDATE messages
        SET seen = TRUE
        WHERE receiver_id = $1 AND seen = FALSE AND id IN (`+buildPlaceholders(2, len(ids))+`)
    `, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// notBefore raises t to last when the conversation already holds a later
// timestamp. The result is always UTC.
func notBefore(t time.Time, last sql.NullTime) time.Time {
	if last.Valid && last.Time.After(t) {
		t = last.Time
	}
	return t.UTC()
}
