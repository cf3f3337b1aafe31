package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"duet-chat/internal/domain/message"
	"duet-chat/internal/repository"
	duet_errors "duet-chat/pkg/errors"
	"duet-chat/pkg/events"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type push struct {
	userID  uuid.UUID
	kind    string
	payload interface{}
}

type fakePusher struct {
	mu     sync.Mutex
	online map[uuid.UUID]int
	pushes []push
}

func newFakePusher(online ...uuid.UUID) *fakePusher {
	p := &fakePusher{online: map[uuid.UUID]int{}}
	for _, id := range online {
		p.online[id]++
	}
	return p
}

func (p *fakePusher) SendToUser(userID uuid.UUID, kind string, payload interface{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.online[userID]
	if n > 0 {
		p.pushes = append(p.pushes, push{userID: userID, kind: kind, payload: payload})
	}
	return n
}

func (p *fakePusher) recorded() []push {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]push(nil), p.pushes...)
}

func newTestStore(t *testing.T) *MessageStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := repository.NewBadgerMessageRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return NewMessageStore(repo)
}

func collectHistory(ctx context.Context, store *MessageStore, a, b uuid.UUID) ([]message.Message, error) {
	out := []message.Message{}
	for m, err := range store.ListByConversation(ctx, a, b) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func TestSendToOnlineReceiverPushesOnce(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	pusher := newFakePusher(bob, alice)
	d := NewDispatcher(newTestStore(t), pusher, nil)

	msg, err := d.SendMessage(ctx, alice, bob, "hi", "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, "hi", msg.Text)
	assert.False(t, msg.Seen)

	pushes := pusher.recorded()
	require.Len(t, pushes, 1)
	assert.Equal(t, bob, pushes[0].userID)
	assert.Equal(t, events.TypeNewMessage, pushes[0].kind)
	assert.Equal(t, msg, pushes[0].payload)
}

func TestSendToOfflineReceiverStillPersists(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	store := newTestStore(t)
	pusher := newFakePusher()
	d := NewDispatcher(store, pusher, nil)

	msg, err := d.SendMessage(ctx, alice, bob, "hello?", "")
	require.NoError(t, err)
	assert.Empty(t, pusher.recorded())

	history, err := collectHistory(ctx, store, bob, alice)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestSendRejectsInvalidContent(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	store := newTestStore(t)
	pusher := newFakePusher(bob)
	d := NewDispatcher(store, pusher, nil)

	_, err := d.SendMessage(ctx, alice, bob, "   ", "")
	assert.ErrorIs(t, err, duet_errors.ErrValidation)

	_, err = d.SendMessage(ctx, alice, alice, "me", "")
	assert.ErrorIs(t, err, duet_errors.ErrValidation)

	history, err := collectHistory(ctx, store, alice, bob)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, pusher.recorded())
}

func TestPushOrderMatchesStorageOrder(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	store := newTestStore(t)
	pusher := newFakePusher(alice, bob)
	d := NewDispatcher(store, pusher, nil)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := alice, bob
			if i%2 == 1 {
				from, to = bob, alice
			}
			_, err := d.SendMessage(ctx, from, to, "ping", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := collectHistory(ctx, store, alice, bob)
	require.NoError(t, err)
	require.Len(t, history, 40)

	pushes := pusher.recorded()
	require.Len(t, pushes, 40)
	for i, p := range pushes {
		assert.Equal(t, history[i].ID, p.payload.(message.Message).ID)
	}
}

func TestStoreCreateTimestampsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	store := newTestStore(t)

	base := time.Now()
	clock := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	store.now = func() time.Time {
		at := clock[i]
		i++
		return at
	}

	var created []message.Message
	for range clock {
		m, err := store.Create(ctx, alice, bob, " text ", "")
		require.NoError(t, err)
		assert.Equal(t, "text", m.Text)
		created = append(created, m)
	}

	assert.False(t, created[1].CreatedAt.Before(created[0].CreatedAt))
	assert.False(t, created[2].CreatedAt.Before(created[1].CreatedAt))

	history, err := collectHistory(ctx, store, alice, bob)
	require.NoError(t, err)
	for i := range created {
		assert.Equal(t, created[i].ID, history[i].ID)
	}
}

func TestStoreMarkSeen(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	store := newTestStore(t)

	m, err := store.Create(ctx, alice, bob, "", "https://cdn.example.com/a.png")
	require.NoError(t, err)

	n, err := store.MarkSeen(ctx, []uuid.UUID{m.ID}, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.MarkSeen(ctx, []uuid.UUID{m.ID}, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.MarkSeen(ctx, []uuid.UUID{m.ID}, uuid.Nil)
	assert.ErrorIs(t, err, duet_errors.ErrUnauthorized)
}

// blockingRepo holds Create for one conversation until release is closed.
type blockingRepo struct {
	repository.MessageRepository
	key     string
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRepo) Create(ctx context.Context, m *message.Message) error {
	if message.ConversationKey(m.SenderID, m.ReceiverID) == r.key {
		close(r.entered)
		<-r.release
	}
	return r.MessageRepository.Create(ctx, m)
}

func TestSlowConversationDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	alice, bob, carol, dan := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	repo := &blockingRepo{
		MessageRepository: newTestStore(t).repo,
		key:               message.ConversationKey(alice, bob),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	d := NewDispatcher(NewMessageStore(repo), newFakePusher(), nil)

	slow := make(chan error, 1)
	go func() {
		_, err := d.SendMessage(ctx, alice, bob, "slow", "")
		slow <- err
	}()
	<-repo.entered

	done := make(chan error, 1)
	go func() {
		_, err := d.SendMessage(ctx, carol, dan, "fast", "")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(repo.release)
		t.Fatal("send in an unrelated conversation waited on a slow write")
	}

	close(repo.release)
	require.NoError(t, <-slow)
	assert.Zero(t, d.activeLocks())
}

func TestValidateRejectsOversizedText(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()

	assert.NoError(t, Validate(alice, bob, strings.Repeat("a", message.MaxTextBytes), ""))
	assert.ErrorIs(t, Validate(alice, bob, strings.Repeat("a", message.MaxTextBytes+1), ""), duet_errors.ErrValidation)
}
