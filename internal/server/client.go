package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"commune-chat/internal/events"
	"commune-chat/internal/feed"
	"commune-chat/internal/store"
	"commune-chat/internal/synccache"
	"commune-chat/internal/typing"
	"commune-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var newline = []byte{'\n'}

// ClientMessage is one inbound frame on the stream.
type ClientMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ServerMessage is one outbound frame: either a relayed feed event or a
// refresh hint telling the client a cached query has new data to re-fetch.
type ServerMessage struct {
	Type  string           `json:"type"`
	Query string           `json:"query,omitempty"`
	Event *events.Envelope `json:"event,omitempty"`
}

// Client is one WebSocket connection. Every connection gets the global
// presence and conversation-creation streams; per-conversation streams attach
// and detach through watch/unwatch frames.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	userID  uuid.UUID
	feed    feed.Feed
	cache   *synccache.Cache
	convs   *store.ConversationStore
	typing  *typing.Coordinator
	log     *logger.Logger
	onClose func()

	mu      sync.Mutex
	watched map[uuid.UUID][]func()
	global  []func()
}

func NewClient(conn *websocket.Conn, userID uuid.UUID, f feed.Feed, cache *synccache.Cache, convs *store.ConversationStore, coordinator *typing.Coordinator, log *logger.Logger, onClose func()) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		userID:  userID,
		feed:    f,
		cache:   cache,
		convs:   convs,
		typing:  coordinator,
		log:     log,
		onClose: onClose,
		watched: make(map[uuid.UUID][]func()),
	}
}

// Run attaches the global streams and blocks in the read pump until the
// connection drops, then tears everything down.
func (c *Client) Run() {
	if err := c.attachGlobal(); err != nil {
		c.log.Errorf("stream attach for %s: %v", c.userID, err)
		// Release whatever attached before the failure and fire onClose so
		// the session refcount drops with the socket.
		c.teardown()
		close(c.done)
		c.conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

func (c *Client) attachGlobal() error {
	sub, err := c.feed.Subscribe(events.PresenceChannel(), func(env events.Envelope) {
		c.push(ServerMessage{Type: "event", Event: &env})
	})
	if err != nil {
		return err
	}
	c.global = append(c.global, sub.Unsubscribe)

	sub, err = c.feed.Subscribe(events.ConversationsChannel(), func(env events.Envelope) {
		c.cache.Invalidate(store.ConversationsKey(c.userID))
		c.push(ServerMessage{Type: "event", Event: &env})
	})
	if err != nil {
		return err
	}
	c.global = append(c.global, sub.Unsubscribe)

	cancel := c.cache.Observe(store.ConversationsKey(c.userID), func() {
		c.push(ServerMessage{Type: "refresh", Query: "conversations"})
	})
	c.global = append(c.global, cancel)
	return nil
}

// watch attaches the conversation's message and typing streams after a
// membership check.
func (c *Client) watch(conversationID uuid.UUID) error {
	member, err := c.convs.IsParticipant(context.Background(), conversationID, c.userID)
	if err != nil {
		return err
	}
	if !member {
		return nil
	}

	c.mu.Lock()
	if _, ok := c.watched[conversationID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.watched[conversationID] = nil
	c.mu.Unlock()

	var cleanups []func()

	sub, err := c.feed.Subscribe(events.MessagesChannel(conversationID), func(env events.Envelope) {
		c.cache.Invalidate(store.MessagesKey(conversationID))
		c.cache.Invalidate(store.ConversationsKey(c.userID))
		c.push(ServerMessage{Type: "event", Event: &env})
	})
	if err != nil {
		c.unwatch(conversationID)
		return err
	}
	cleanups = append(cleanups, sub.Unsubscribe)

	sub, err = c.feed.Subscribe(events.TypingChannel(conversationID), func(env events.Envelope) {
		c.push(ServerMessage{Type: "event", Event: &env})
	})
	if err != nil {
		for _, fn := range cleanups {
			fn()
		}
		c.unwatch(conversationID)
		return err
	}
	cleanups = append(cleanups, sub.Unsubscribe)

	cancel := c.cache.Observe(store.MessagesKey(conversationID), func() {
		c.push(ServerMessage{Type: "refresh", Query: "messages:" + conversationID.String()})
	})
	cleanups = append(cleanups, cancel)

	c.mu.Lock()
	c.watched[conversationID] = cleanups
	c.mu.Unlock()
	return nil
}

func (c *Client) unwatch(conversationID uuid.UUID) {
	c.mu.Lock()
	cleanups, ok := c.watched[conversationID]
	delete(c.watched, conversationID)
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, fn := range cleanups {
		fn()
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	watched := c.watched
	c.watched = make(map[uuid.UUID][]func())
	global := c.global
	c.global = nil
	c.mu.Unlock()

	for _, cleanups := range watched {
		for _, fn := range cleanups {
			fn()
		}
	}
	for _, fn := range global {
		fn()
	}
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Client) push(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		// Slow consumer: drop the frame, the refresh path repairs it.
	}
}

func (c *Client) readPump() {
	defer func() {
		c.teardown()
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnf("stream for %s closed unexpectedly: %v", c.userID, err)
			}
			return
		}
		if err := c.handleMessage(message); err != nil {
			c.log.Warnf("stream frame from %s: %v", c.userID, err)
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return err
	}

	switch msg.Type {
	case "watch":
		conversationID, err := uuid.Parse(msg.ConversationID)
		if err != nil {
			return err
		}
		return c.watch(conversationID)
	case "unwatch":
		conversationID, err := uuid.Parse(msg.ConversationID)
		if err != nil {
			return err
		}
		c.unwatch(conversationID)
		return nil
	case "typing:start":
		conversationID, err := uuid.Parse(msg.ConversationID)
		if err != nil {
			return err
		}
		return c.typing.Start(context.Background(), c.userID, conversationID)
	case "typing:stop":
		conversationID, err := uuid.Parse(msg.ConversationID)
		if err != nil {
			return err
		}
		return c.typing.Stop(context.Background(), c.userID, conversationID)
	case "ping":
		c.push(ServerMessage{Type: "pong"})
		return nil
	default:
		return nil
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
