package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	chatsvc "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
)

const defaultSendBuffer = 32

// Hub is the realtime gateway: it groups live connections by conversation
// and fans accepted messages out to every joined connection, including the
// sender's own, so everyone's view is driven by the same durable event.
//
// The registry and room membership change only under the hub lock, with
// the room lock nested inside it. The send pipeline (gate check, durable
// append, broadcast) holds just the room lock, so two near-simultaneous
// sends on one conversation are appended and delivered in one consistent
// order while sends on different conversations never serialize against
// each other. Lock order is always hub before room.
type Hub struct {
	Store        *chatsvc.Store
	Gate         *chatsvc.LifecycleGate
	Logger       *slog.Logger
	WriteTimeout time.Duration
	PingInterval time.Duration

	mu    sync.Mutex
	rooms map[domainchat.ConversationID]*room
}

type room struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub(store *chatsvc.Store, gate *chatsvc.LifecycleGate, logger *slog.Logger) *Hub {
	return &Hub{
		Store:  store,
		Gate:   gate,
		Logger: logger,
		rooms:  make(map[domainchat.ConversationID]*room),
	}
}

// HandleJoin validates the caller against the stored participant pair and
// moves the connection into the conversation's broadcast group. A failed
// join has no side effects.
func (h *Hub) HandleJoin(ctx context.Context, c *Client, id domainchat.ConversationID) {
	if _, err := h.Store.Conversation(ctx, id, c.userID); err != nil {
		c.deliver(encodeError(id, errorCode(err)))
		return
	}
	h.leaveRoom(c)
	h.joinRoom(c, id)
	c.deliver(encodeJoined(id))
	if h.Logger != nil {
		h.Logger.Info("connection joined", "conversation_id", id, "user_id", c.userID)
	}
}

// HandleSend runs the send pipeline: lifecycle gate, durable append, then
// fan-out. The room lock is held across all three so every observer sees
// sends on this conversation in append order. Rejections go to the sender
// only and never partially broadcast.
func (h *Hub) HandleSend(ctx context.Context, c *Client, id domainchat.ConversationID, body string) {
	if c.conversationID != id {
		c.deliver(encodeError(id, CodeForbidden))
		return
	}
	r := h.room(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	// re-evaluated on every send, not just at join: the listing can be
	// sold or removed while the connection is open
	if err := h.Gate.EnsureOpen(ctx, id); err != nil {
		c.deliver(encodeError(id, errorCode(err)))
		return
	}

	message, err := h.Store.Append(ctx, id, c.userID, body)
	if err != nil {
		c.deliver(encodeError(id, errorCode(err)))
		return
	}

	payload := encodeMessage(message)
	for client := range r.clients {
		client.deliver(payload)
	}
}

// Unregister removes a connection from its broadcast group on transport
// loss. Nothing is lost: persistence happens before broadcast, so a
// reconnecting client recovers missed messages from history.
func (h *Hub) Unregister(c *Client) {
	h.leaveRoom(c)
	c.closeSend()
	if h.Logger != nil {
		h.Logger.Info("connection closed", "user_id", c.userID)
	}
}

func (h *Hub) room(id domainchat.ConversationID) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		r = &room{clients: make(map[*Client]struct{})}
		h.rooms[id] = r
	}
	return r
}

// joinRoom and leaveRoom are the only membership mutations. Both hold the
// hub lock with the room lock nested inside it, so a join can never land
// in a room that a concurrent leave is about to drop from the registry.
func (h *Hub) joinRoom(c *Client, id domainchat.ConversationID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		r = &room{clients: make(map[*Client]struct{})}
		h.rooms[id] = r
	}
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
	c.conversationID = id
}

func (h *Hub) leaveRoom(c *Client) {
	if c.conversationID == "" {
		return
	}
	h.mu.Lock()
	if r, ok := h.rooms[c.conversationID]; ok {
		r.mu.Lock()
		delete(r.clients, c)
		if len(r.clients) == 0 {
			delete(h.rooms, c.conversationID)
		}
		r.mu.Unlock()
	}
	h.mu.Unlock()
	c.conversationID = ""
}

func (h *Hub) writeTimeout() time.Duration {
	if h.WriteTimeout > 0 {
		return h.WriteTimeout
	}
	return 10 * time.Second
}

func (h *Hub) pingInterval() time.Duration {
	if h.PingInterval > 0 {
		return h.PingInterval
	}
	return 30 * time.Second
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound), errors.Is(err, domainlistings.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domainchat.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domainchat.ErrConversationClosed):
		return CodeConversationClosed
	case errors.Is(err, domainchat.ErrEmptyMessage):
		return CodeEmptyMessage
	default:
		return CodeInternal
	}
}
