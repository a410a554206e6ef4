package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/internal/hub"
	"github.com/telemed-live/videocall-service/internal/token"
	"github.com/telemed-live/videocall-service/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Join URLs already gate access; origin is not trusted either way.
	},
}

// WSHandler handles websocket upgrades and relay message routing.
type WSHandler struct {
	hub    *hub.Hub
	issuer *token.Issuer
}

// NewWSHandler creates a websocket relay handler.
func NewWSHandler(h *hub.Hub, issuer *token.Issuer) *WSHandler {
	return &WSHandler{
		hub:    h,
		issuer: issuer,
	}
}

// HandleWebSocket upgrades the connection and starts the pumps.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := log.L()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &hub.Client{
		ID:   uuid.New().String(),
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	client.SetDisconnectHandler(h.handleDisconnect)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		h.drop(client, domain.ErrCodeBadRequest, "invalid message format")
		return
	}

	switch base.Type {
	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Room == "" || msg.UserID == "" {
			h.drop(client, domain.ErrCodeBadRequest, "invalid join-room message")
			return
		}
		h.handleJoinRoom(client, &msg)

	case domain.MsgTypeSignal:
		var msg domain.SignalMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Room == "" {
			h.drop(client, domain.ErrCodeBadRequest, "invalid signal message")
			return
		}
		h.handleSignal(client, &msg)

	default:
		h.drop(client, domain.ErrCodeBadRequest, "unknown message type")
	}
}

func (h *WSHandler) handleJoinRoom(client *hub.Client, msg *domain.JoinRoomMessage) {
	l := log.L()

	// A token is not required to relay, but a presented one must be
	// genuine and scoped to the requested room.
	if msg.Token != "" {
		claims, err := h.issuer.Verify(msg.Token)
		if err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, client.ID).Msg("join-room with invalid token")
			h.drop(client, domain.ErrCodeUnauthorized, "invalid join token")
			return
		}
		if claims.RoomName != msg.Room {
			l.Warn().Str(log.FieldClientID, client.ID).Str(log.FieldRoom, msg.Room).Msg("join-room token scoped to different room")
			h.drop(client, domain.ErrCodeForbidden, "token is not valid for this room")
			return
		}
	}

	// A re-join to a different room moves the client; membership in
	// the old room would keep feeding it broadcasts it can no longer
	// answer.
	if prev := client.Room(); prev != "" && prev != msg.Room {
		h.hub.LeaveRoom(client, prev)
		h.hub.BroadcastToRoom(prev, &domain.PresenceMessage{
			Type:   domain.MsgTypeUserDisconnected,
			Room:   prev,
			UserID: client.UserID(),
		}, client.ID)
	}

	client.SetIdentity(msg.UserID, msg.Room)
	h.hub.JoinRoom(client, msg.Room)

	h.hub.BroadcastToRoom(msg.Room, &domain.PresenceMessage{
		Type:   domain.MsgTypeUserConnected,
		Room:   msg.Room,
		UserID: msg.UserID,
	}, client.ID)
}

func (h *WSHandler) handleSignal(client *hub.Client, msg *domain.SignalMessage) {
	l := log.L()

	// Relaying is keyed strictly by the sender's own membership:
	// a signal naming a foreign room never leaks into it.
	if client.Room() == "" || msg.Room != client.Room() || !h.hub.InRoom(client, msg.Room) {
		l.Warn().
			Str(log.FieldClientID, client.ID).
			Str(log.FieldRoom, msg.Room).
			Msg("signal for a room the sender has not joined")
		h.drop(client, domain.ErrCodeForbidden, "not a member of this room")
		return
	}

	h.hub.BroadcastToRoom(msg.Room, &domain.SignalMessage{
		Type:   domain.MsgTypeSignal,
		Room:   msg.Room,
		Sender: client.UserID(),
		Data:   msg.Data,
	}, client.ID)
}

func (h *WSHandler) handleDisconnect(client *hub.Client) {
	room := client.Room()
	if room == "" {
		return
	}
	h.hub.BroadcastToRoom(room, &domain.PresenceMessage{
		Type:   domain.MsgTypeUserDisconnected,
		Room:   room,
		UserID: client.UserID(),
	}, client.ID)
}

// drop notifies the client and severs the connection. Relay failures
// stay scoped to the offending connection. Unregistering closes the
// send channel, so the write pump flushes the error message before it
// sends the close frame.
func (h *WSHandler) drop(client *hub.Client, code, message string) {
	client.SendMessage(domain.NewErrorMessage(code, message))
	h.hub.Unregister(client)
}
