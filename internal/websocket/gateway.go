package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"duet-chat/internal/observability"
	"duet-chat/internal/presence"
	"duet-chat/internal/services"
	duet_errors "duet-chat/pkg/errors"
	"duet-chat/pkg/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway owns every live connection. Presence changes are broadcast from
// inside the registry lock, so each client sees snapshots in mutation order.
type Gateway struct {
	auth     services.Authenticator
	registry *presence.Registry[*Client]
	log      *WebSocketLogger
	cfg      Config

	mu      sync.Mutex
	closing bool
	pumps   sync.WaitGroup
}

type Config struct {
	// CookieName carries the session credential on the handshake.
	CookieName string
	// AllowedOrigins restricts the Origin header; empty allows any.
	AllowedOrigins []string
}

func NewGateway(auth services.Authenticator, cfg Config, logger *zap.Logger) *Gateway {
	g := &Gateway{
		auth: auth,
		log:  NewWebSocketLogger(logger),
		cfg:  cfg,
	}
	g.registry = presence.NewRegistry[*Client](g.onPresenceChange)
	return g
}

// onPresenceChange runs under the registry lock; it only enqueues.
func (g *Gateway) onPresenceChange(online []uuid.UUID, clients []*Client) {
	observability.SetWSPresence(len(clients), len(online))

	frame, err := events.Encode(events.TypeOnlineUsers, online)
	if err != nil {
		g.log.logger.Error("encode presence snapshot", zap.Error(err))
		return
	}
	for _, c := range clients {
		c.push(frame)
	}
}

// OnConnect authenticates credential and, on success, registers conn and
// starts its pumps. On failure conn is closed and nothing is registered.
func (g *Gateway) OnConnect(ctx context.Context, conn Conn, credential string) (*Client, error) {
	userID, err := g.auth.Authenticate(ctx, credential)
	if err != nil {
		_ = conn.Close()
		observability.IncWSEvent("connect", "unauthorized")
		return nil, fmt.Errorf("websocket connect: %w", duet_errors.ErrUnauthorized)
	}
	return g.attach(conn, userID)
}

func (g *Gateway) attach(conn Conn, userID uuid.UUID) (*Client, error) {
	client := newClient(g, conn, userID)

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		_ = conn.Close()
		return nil, duet_errors.ErrServiceUnavailable
	}
	// the snapshot broadcast reaches the new client too
	g.registry.Register(userID, client)
	g.pumps.Add(2)
	g.mu.Unlock()

	go func() {
		defer g.pumps.Done()
		client.writePump()
	}()
	go func() {
		defer g.pumps.Done()
		client.readPump()
	}()

	g.log.Info("client connected", userID, client.clientID)
	observability.IncWSEvent("connect", "accepted")
	return client, nil
}

// OnDisconnect unregisters c and closes its queue. Safe to call any number
// of times from any goroutine.
func (g *Gateway) OnDisconnect(c *Client) {
	if c == nil {
		return
	}
	if g.registry.Unregister(c) {
		g.log.Info("client disconnected", c.userID, c.clientID,
			zap.Duration("session", time.Since(c.connectedAt)),
		)
		observability.IncWSEvent("disconnect", "ok")
	}
	c.close()
}

// SendToUser queues one event on every connection of userID and returns how
// many connections accepted it. An offline user is not an error.
func (g *Gateway) SendToUser(userID uuid.UUID, kind string, payload interface{}) int {
	clients := g.registry.ConnectionsOf(userID)
	if len(clients) == 0 {
		return 0
	}

	frame, err := events.Encode(kind, payload)
	if err != nil {
		g.log.Error("encode event", userID, "", err, zap.String("msg_type", kind))
		return 0
	}

	queued := 0
	for _, c := range clients {
		if c.push(frame) {
			queued++
		} else {
			observability.IncWSEvent(kind, "dropped")
		}
	}
	if queued > 0 {
		observability.IncWSEvent(kind, "queued")
	}
	return queued
}

// BroadcastPresence pushes the current online snapshot to every connection.
func (g *Gateway) BroadcastPresence() {
	g.registry.Notify()
}

func (g *Gateway) IsOnline(userID uuid.UUID) bool {
	return g.registry.IsOnline(userID)
}

func (g *Gateway) OnlineUsers() []uuid.UUID {
	return g.registry.Snapshot()
}

// Run blocks until ctx is done, then shuts the gateway down.
func (g *Gateway) Run(ctx context.Context) {
	<-ctx.Done()
	g.Shutdown()
}

// Shutdown refuses new connections, disconnects every client and waits for
// their pumps to exit.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	for _, c := range g.registry.All() {
		g.OnDisconnect(c)
	}
	g.pumps.Wait()
}
