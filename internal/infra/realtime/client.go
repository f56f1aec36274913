package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	domainchat "marketchat/internal/domain/chat"
	domainuser "marketchat/internal/domain/user"
)

const maxFrameBytes = 16 << 10

// Client is one live connection. The identity is fixed at upgrade time
// from the authenticated principal; frames cannot speak for anyone else.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID         domainuser.ID
	conversationID domainchat.ConversationID

	closeOnce sync.Once
}

// ServeConn drives a freshly upgraded connection until the transport
// drops. It blocks; the caller owns the HTTP handler goroutine.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, userID domainuser.ID) {
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, defaultSendBuffer),
		userID: userID,
	}
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameBytes)
	pongWait := c.hub.pingInterval() * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.deliver(encodeError("", CodeBadRequest))
			continue
		}
		id := domainchat.ConversationID(strings.TrimSpace(frame.ConversationID))
		switch frame.Type {
		case frameJoin:
			if id == "" {
				c.deliver(encodeError("", CodeBadRequest))
				continue
			}
			c.hub.HandleJoin(ctx, c, id)
		case frameSend:
			if id == "" {
				c.deliver(encodeError("", CodeBadRequest))
				continue
			}
			c.hub.HandleSend(ctx, c, id, frame.Body)
		default:
			c.deliver(encodeError(id, CodeBadRequest))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(c.hub.writeTimeout()))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout()))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeTimeout())); err != nil {
				return
			}
		}
	}
}

// deliver queues a frame without blocking the caller. A connection that
// cannot drain its buffer misses the frame and recovers via a history
// refetch after reconnecting.
func (c *Client) deliver(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
