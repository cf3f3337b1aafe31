package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	duet_errors "duet-chat/pkg/errors"
	"duet-chat/pkg/events"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	inbound   chan []byte
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		frames:  make(chan []byte, 1024),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-f.inbound:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, m, nil
	case <-f.closed:
		return 0, nil, errConnClosed
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errConnClosed
	default:
	}
	if messageType == websocket.TextMessage {
		f.frames <- data
	}
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                 {}
func (f *fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func nextFrame(t *testing.T, f *fakeConn) frame {
	t.Helper()
	select {
	case data := <-f.frames:
		var fr frame
		require.NoError(t, json.Unmarshal(data, &fr))
		return fr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return frame{}
	}
}

func assertNoFrame(t *testing.T, f *fakeConn) {
	t.Helper()
	select {
	case data := <-f.frames:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func onlineIn(t *testing.T, fr frame) []uuid.UUID {
	t.Helper()
	require.Equal(t, events.TypeOnlineUsers, fr.Type)
	var ids []uuid.UUID
	require.NoError(t, json.Unmarshal(fr.Payload, &ids))
	return ids
}

func sorted(ids ...uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func waitClosed(t *testing.T, f *fakeConn) {
	t.Helper()
	select {
	case <-f.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}

type fakeAuth map[string]uuid.UUID

func (a fakeAuth) Authenticate(_ context.Context, credential string) (uuid.UUID, error) {
	if id, ok := a[credential]; ok {
		return id, nil
	}
	return uuid.Nil, duet_errors.ErrUnauthorized
}

type fixture struct {
	gw    *Gateway
	alice uuid.UUID
	bob   uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	alice, bob := uuid.New(), uuid.New()
	gw := NewGateway(fakeAuth{"tok-alice": alice, "tok-bob": bob}, Config{CookieName: "jwt"}, nil)
	t.Cleanup(gw.Shutdown)
	return fixture{gw: gw, alice: alice, bob: bob}
}

func (fx fixture) connect(t *testing.T, credential string) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	c, err := fx.gw.OnConnect(context.Background(), conn, credential)
	require.NoError(t, err)
	return c, conn
}

func TestConnectRejectsBadCredential(t *testing.T) {
	fx := newFixture(t)
	conn := newFakeConn()

	c, err := fx.gw.OnConnect(context.Background(), conn, "forged")
	assert.ErrorIs(t, err, duet_errors.ErrUnauthorized)
	assert.Nil(t, c)
	assert.True(t, conn.isClosed())
	assert.Empty(t, fx.gw.OnlineUsers())
}

func TestConnectBroadcastsSnapshotToEveryone(t *testing.T) {
	fx := newFixture(t)

	_, aliceConn := fx.connect(t, "tok-alice")
	assert.Equal(t, []uuid.UUID{fx.alice}, onlineIn(t, nextFrame(t, aliceConn)))

	_, bobConn := fx.connect(t, "tok-bob")
	want := sorted(fx.alice, fx.bob)
	assert.Equal(t, want, onlineIn(t, nextFrame(t, aliceConn)))
	assert.Equal(t, want, onlineIn(t, nextFrame(t, bobConn)))
	assert.Equal(t, want, fx.gw.OnlineUsers())
}

func TestSendToUserReachesOnlyReceiver(t *testing.T) {
	fx := newFixture(t)
	_, aliceConn := fx.connect(t, "tok-alice")
	_, bobConn := fx.connect(t, "tok-bob")
	nextFrame(t, aliceConn)
	nextFrame(t, aliceConn)
	nextFrame(t, bobConn)

	n := fx.gw.SendToUser(fx.bob, events.TypeNewMessage, map[string]string{"text": "hi"})
	assert.Equal(t, 1, n)

	fr := nextFrame(t, bobConn)
	assert.Equal(t, events.TypeNewMessage, fr.Type)
	assert.JSONEq(t, `{"text":"hi"}`, string(fr.Payload))
	assertNoFrame(t, aliceConn)
}

func TestSendToOfflineUserIsDropped(t *testing.T) {
	fx := newFixture(t)
	assert.Equal(t, 0, fx.gw.SendToUser(uuid.New(), events.TypeNewMessage, "x"))
}

func TestSendToUserWithSeveralConnections(t *testing.T) {
	fx := newFixture(t)
	_, tab1 := fx.connect(t, "tok-bob")
	nextFrame(t, tab1)
	_, tab2 := fx.connect(t, "tok-bob")
	nextFrame(t, tab1)
	nextFrame(t, tab2)

	assert.Equal(t, 2, fx.gw.SendToUser(fx.bob, events.TypeNewMessage, "x"))
	assert.Equal(t, events.TypeNewMessage, nextFrame(t, tab1).Type)
	assert.Equal(t, events.TypeNewMessage, nextFrame(t, tab2).Type)
	// one user even with two connections
	assert.Equal(t, []uuid.UUID{fx.bob}, fx.gw.OnlineUsers())
}

func TestMalformedFrameClosesOnlyThatConnection(t *testing.T) {
	fx := newFixture(t)
	_, aliceConn := fx.connect(t, "tok-alice")
	_, bobConn := fx.connect(t, "tok-bob")
	nextFrame(t, aliceConn)
	nextFrame(t, aliceConn)
	nextFrame(t, bobConn)

	bobConn.inbound <- []byte("{not json")
	waitClosed(t, bobConn)

	assert.Equal(t, []uuid.UUID{fx.alice}, onlineIn(t, nextFrame(t, aliceConn)))
	assert.False(t, aliceConn.isClosed())
	assert.False(t, fx.gw.IsOnline(fx.bob))
}

func TestPingIsAnsweredAndUnknownIgnored(t *testing.T) {
	fx := newFixture(t)
	_, conn := fx.connect(t, "tok-alice")
	nextFrame(t, conn)

	conn.inbound <- []byte(`{"type":"typing"}`)
	conn.inbound <- []byte(`{"type":"ping"}`)
	assert.Equal(t, events.TypePong, nextFrame(t, conn).Type)
	assert.False(t, conn.isClosed())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	_, aliceConn := fx.connect(t, "tok-alice")
	bob, bobConn := fx.connect(t, "tok-bob")
	nextFrame(t, aliceConn)
	nextFrame(t, aliceConn)

	fx.gw.OnDisconnect(bob)
	fx.gw.OnDisconnect(bob)
	waitClosed(t, bobConn)

	assert.Equal(t, []uuid.UUID{fx.alice}, onlineIn(t, nextFrame(t, aliceConn)))
	assertNoFrame(t, aliceConn)
	assert.Equal(t, 0, fx.gw.SendToUser(fx.bob, events.TypeNewMessage, "late"))
}

func TestBroadcastPresence(t *testing.T) {
	fx := newFixture(t)
	_, conn := fx.connect(t, "tok-alice")
	nextFrame(t, conn)

	fx.gw.BroadcastPresence()
	assert.Equal(t, []uuid.UUID{fx.alice}, onlineIn(t, nextFrame(t, conn)))
}

func TestShutdownClosesEverything(t *testing.T) {
	fx := newFixture(t)
	_, aliceConn := fx.connect(t, "tok-alice")
	_, bobConn := fx.connect(t, "tok-bob")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fx.gw.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop")
	}
	waitClosed(t, aliceConn)
	waitClosed(t, bobConn)
	assert.Empty(t, fx.gw.OnlineUsers())

	_, err := fx.gw.OnConnect(context.Background(), newFakeConn(), "tok-alice")
	assert.ErrorIs(t, err, duet_errors.ErrServiceUnavailable)
}

func TestHandshakeOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fx := newFixture(t)

	router := gin.New()
	router.GET("/ws", fx.gw.Handle)
	srv := httptest.NewServer(router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, fx.gw.OnlineUsers())

	header := http.Header{}
	header.Set("Cookie", "jwt=tok-alice")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var fr frame
	require.NoError(t, json.Unmarshal(data, &fr))
	assert.Equal(t, []uuid.UUID{fx.alice}, onlineIn(t, fr))

	bearer, _, err := websocket.DefaultDialer.Dial(url+"?token=tok-bob", nil)
	require.NoError(t, err)
	defer bearer.Close()
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &fr))
	assert.Equal(t, sorted(fx.alice, fx.bob), onlineIn(t, fr))
}

func TestDisconnectLogsSessionLength(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	alice := uuid.New()
	gw := NewGateway(fakeAuth{"tok-alice": alice}, Config{}, zap.New(core))
	t.Cleanup(gw.Shutdown)

	conn := newFakeConn()
	c, err := gw.OnConnect(context.Background(), conn, "tok-alice")
	require.NoError(t, err)
	gw.OnDisconnect(c)
	waitClosed(t, conn)

	entries := logs.FilterField(zap.String("event", "client disconnected")).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, alice.String(), fields["user_id"])
	session, ok := fields["session"].(time.Duration)
	require.True(t, ok)
	assert.GreaterOrEqual(t, session, time.Duration(0))
}
