package services

import (
	"context"
	"sync"

	"duet-chat/internal/domain/message"
	"duet-chat/internal/observability"
	"duet-chat/pkg/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pusher queues an event on every live connection of a user and reports
// how many connections it reached. It must not block.
type Pusher interface {
	SendToUser(userID uuid.UUID, kind string, payload interface{}) int
}

// Dispatcher persists a message and then pushes it to the receiver if they
// are online. Delivery is best effort; persistence is not.
type Dispatcher struct {
	store  *MessageStore
	pusher Pusher
	log    *zap.Logger

	// messages of one conversation are persisted and queued under the same
	// lock, so receivers observe them in storage order
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func NewDispatcher(store *MessageStore, pusher Pusher, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{store: store, pusher: pusher, log: log, locks: make(map[string]*conversationLock)}
}

// lock serialises sends within the conversation {a, b} only. The entry is
// dropped once no sender holds or waits on it.
func (d *Dispatcher) lock(a, b uuid.UUID) func() {
	key := message.ConversationKey(a, b)

	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &conversationLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, key)
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) activeLocks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}

func (d *Dispatcher) SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, text, image string) (message.Message, error) {
	unlock := d.lock(senderID, receiverID)
	defer unlock()

	msg, err := d.store.Create(ctx, senderID, receiverID, text, image)
	if err != nil {
		return message.Message{}, err
	}
	observability.IncMessagePersisted()

	delivered := 0
	if d.pusher != nil {
		delivered = d.pusher.SendToUser(receiverID, events.TypeNewMessage, msg)
	}
	if delivered > 0 {
		observability.IncMessageDelivery("pushed")
	} else {
		observability.IncMessageDelivery("offline")
	}

	d.log.Debug("message dispatched",
		zap.String("message_id", msg.ID.String()),
		zap.String("sender_id", senderID.String()),
		zap.String("receiver_id", receiverID.String()),
		zap.Int("connections", delivered),
	)
	return msg, nil
}
