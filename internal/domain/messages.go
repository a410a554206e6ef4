package domain

import "encoding/json"

// Relay message types. The wire names are hyphenated to match the
// events the browser client emits.
const (
	MsgTypeJoinRoom         = "join-room"
	MsgTypeUserConnected    = "user-connected"
	MsgTypeUserDisconnected = "user-disconnected"
	MsgTypeSignal           = "signal"
	MsgTypeError            = "error"
)

// BaseMessage is the envelope shared by all relay messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// JoinRoomMessage is sent by a client to enter its signaling room.
// Token is optional; when present it is verified and its room claim
// must match Room.
type JoinRoomMessage struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	UserID string `json:"user_id"`
	Token  string `json:"token,omitempty"`
}

// PresenceMessage announces a peer joining or leaving a room.
// Used for both user-connected and user-disconnected.
type PresenceMessage struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

// SignalMessage carries an opaque negotiation payload (SDP offer,
// SDP answer, or ICE candidate) between the two peers of a room.
// The relay stamps Sender and forwards Data verbatim.
type SignalMessage struct {
	Type   string          `json:"type"`
	Room   string          `json:"room"`
	Sender string          `json:"sender,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Negotiation payload kinds inside SignalMessage.Data.
const (
	SignalKindOffer     = "offer"
	SignalKindAnswer    = "answer"
	SignalKindCandidate = "candidate"
)

// SignalPayload is the negotiation payload the clients exchange.
// SDP is set for offers and answers, Candidate for ICE candidates.
type SignalPayload struct {
	Kind      string          `json:"kind"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ErrorMessage is sent to a client before its connection is dropped.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Relay error codes.
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
)

// NewErrorMessage creates a relay error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
