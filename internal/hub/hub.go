// Package hub is the realtime signaling relay: rooms of live
// websocket connections exchanging negotiation messages. It never
// inspects SDP or ICE content and keeps no durable state.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telemed-live/videocall-service/internal/config"
	"github.com/telemed-live/videocall-service/pkg/log"
)

// DisconnectHandler is called when a client's connection drops.
type DisconnectHandler func(*Client)

// Client represents one connected websocket peer.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	mu         sync.RWMutex
	userID     string
	room       string
	sendClosed bool

	disconnectHandler DisconnectHandler
}

// closeSend closes the send channel exactly once. Senders check
// sendClosed under the same mutex, so no send can race the close.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
}

// SetDisconnectHandler sets the handler called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// SetIdentity records the user and room bound on join-room.
func (c *Client) SetIdentity(userID, room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.room = room
}

// UserID returns the joined user id, empty before join-room.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Room returns the joined room, empty before join-room.
func (c *Client) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// Hub manages all websocket connections and room membership.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client // roomName -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// RoomMessage is a message to be broadcast to one room.
type RoomMessage struct {
	Room    string
	Message []byte
	Exclude string // Client ID to exclude from broadcast
}

// New creates a Hub.
func New(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		config:     cfg,
	}
}

// Run starts the hub's main loop. Broadcasts are serialized here, so
// messages from one sender reach the other room member in send order.
func (h *Hub) Run() {
	l := log.L()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Info().Str(log.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for room, members := range h.rooms {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.rooms, room)
					}
				}
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			l.Info().Str(log.FieldClientID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if members, ok := h.rooms[msg.Room]; ok {
				for clientID, client := range members {
					if clientID == msg.Exclude {
						continue
					}
					select {
					case client.Send <- msg.Message:
					default:
						// Client's send buffer is full.
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom adds a client to a room. The room springs into existence
// with its first member and vanishes with its last.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][client.ID] = client
	l := log.L()
	l.Info().Str(log.FieldClientID, client.ID).Str(log.FieldRoom, room).Msg("client joined room")
}

// LeaveRoom removes a client from a room, dropping the room when it
// empties.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	l := log.L()
	l.Info().Str(log.FieldClientID, client.ID).Str(log.FieldRoom, room).Msg("client left room")
}

// InRoom reports whether the client is a member of the room.
func (h *Hub) InRoom(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[client.ID]
	return ok
}

// BroadcastToRoom sends a message to all clients in a room except the
// excluded one.
func (h *Hub) BroadcastToRoom(room string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &RoomMessage{
		Room:    room,
		Message: data,
		Exclude: exclude,
	}
	return nil
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}

// ReadPump pumps messages from the websocket connection to the
// handler. It owns the connection's read side and tears the client
// down on exit.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Error().Err(err).Str(log.FieldClientID, c.ID).Msg("websocket error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals and queues a message for the client. It is a
// no-op once the client has been unregistered; the relay must survive
// a client that keeps sending after it was dropped.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sendClosed {
		return nil
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}
