package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"duet-chat/internal/domain/message"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var messageSeqKey = []byte("seq:messages")

// BadgerMessageRepository keeps messages in an embedded badger database.
// Messages live under "msg:{conversation}:{createdAt padded}:{seq padded}"
// so a prefix scan returns a conversation already ordered; "mid:{id}" points
// back to that key for seen updates.
type BadgerMessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence

	// writes are serialised; badger would otherwise abort a create racing
	// a seen update with ErrConflict.
	mu sync.Mutex
}

func NewBadgerMessageRepository(db *badger.DB) (*BadgerMessageRepository, error) {
	seq, err := db.GetSequence(messageSeqKey, 100)
	if err != nil {
		return nil, err
	}
	return &BadgerMessageRepository{db: db, seq: seq}, nil
}

// Close returns unused sequence leases to the database.
func (r *BadgerMessageRepository) Close() error {
	return r.seq.Release()
}

// diskMessage is the stored form; Seq is hidden from the API encoding.
type diskMessage struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"senderId"`
	ReceiverID uuid.UUID `json:"receiverId"`
	Text       string    `json:"text"`
	Image      string    `json:"image"`
	CreatedAt  time.Time `json:"createdAt"`
	Seen       bool      `json:"seen"`
	Seq        int64     `json:"seq"`
}

func fromMessage(m message.Message) diskMessage {
	return diskMessage(m)
}

func (d diskMessage) toMessage() message.Message {
	return message.Message(d)
}

func encodeMessage(m message.Message) ([]byte, error) {
	return json.Marshal(fromMessage(m))
}

func decodeMessage(value []byte) (message.Message, error) {
	var d diskMessage
	if err := json.Unmarshal(value, &d); err != nil {
		return message.Message{}, err
	}
	return d.toMessage(), nil
}

func conversationPrefix(key string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", key))
}

func messageKey(m message.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%019d",
		message.ConversationKey(m.SenderID, m.ReceiverID),
		m.CreatedAt.UnixNano(),
		m.Seq,
	))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte("mid:" + id.String())
}

func (r *BadgerMessageRepository) Create(ctx context.Context, m *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := r.seq.Next()
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		last, err := lastCreatedAt(txn, message.ConversationKey(m.SenderID, m.ReceiverID))
		if err != nil {
			return err
		}
		if last.After(m.CreatedAt) {
			m.CreatedAt = last
		}
		m.CreatedAt = m.CreatedAt.UTC()
		m.Seq = int64(next) + 1

		bytes, err := encodeMessage(*m)
		if err != nil {
			return err
		}
		key := messageKey(*m)
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(m.ID), key)
	})
}

// lastCreatedAt reads the newest message of a conversation by seeking to the
// end of its prefix.
func lastCreatedAt(txn *badger.Txn, key string) (time.Time, error) {
	prefix := conversationPrefix(key)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	it.Seek(append(append([]byte{}, prefix...), 0xFF))
	if !it.ValidForPrefix(prefix) {
		return time.Time{}, nil
	}

	var last message.Message
	if err := it.Item().Value(func(value []byte) (err error) {
		last, err = decodeMessage(value)
		return err
	}); err != nil {
		return time.Time{}, err
	}
	return last.CreatedAt, nil
}

func (r *BadgerMessageRepository) ListByConversation(ctx context.Context, a, b uuid.UUID) iter.Seq2[message.Message, error] {
	prefix := conversationPrefix(message.ConversationKey(a, b))
	return func(yield func(message.Message, error) bool) {
		stopped := false
		err := r.db.View(func(txn *badger.Txn) error {
			options := badger.DefaultIteratorOptions
			options.Prefix = prefix
			it := txn.NewIterator(options)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var m message.Message
				if err := it.Item().Value(func(value []byte) (err error) {
					m, err = decodeMessage(value)
					return err
				}); err != nil {
					return err
				}
				if !yield(m, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(message.Message{}, err)
		}
	}
}

func (r *BadgerMessageRepository) MarkSeen(ctx context.Context, ids []uuid.UUID, viewerID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	err := r.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			idx, err := txn.Get(messageIndexKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			key, err := idx.ValueCopy(nil)
			if err != nil {
				return err
			}

			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			var m message.Message
			if err := item.Value(func(value []byte) (err error) {
				m, err = decodeMessage(value)
				return err
			}); err != nil {
				return err
			}
			if m.ReceiverID != viewerID || m.Seen {
				continue
			}

			m.Seen = true
			bytes, err := encodeMessage(m)
			if err != nil {
				return err
			}
			if err := txn.Set(key, bytes); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
