package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemed-live/videocall-service/internal/config"
	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/internal/hub"
	"github.com/telemed-live/videocall-service/internal/token"
)

func newRelayServer(t *testing.T) (*httptest.Server, *token.Issuer) {
	t.Helper()

	issuer, err := token.NewIssuer(testTokenSecret, time.Hour)
	require.NoError(t, err)

	relay := hub.New(config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 65536,
	})
	go relay.Run()

	wsHandler := NewWSHandler(relay, issuer)
	srv := httptest.NewServer(http.HandlerFunc(wsHandler.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv, issuer
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func field(t *testing.T, msg map[string]json.RawMessage, key string) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(msg[key], &s))
	return s
}

func assertNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message: %s", data)
}

func joinRoom(t *testing.T, conn *websocket.Conn, room, userID string) {
	t.Helper()
	send(t, conn, &domain.JoinRoomMessage{Type: domain.MsgTypeJoinRoom, Room: room, UserID: userID})
}

func TestFirstJoinerBecomesOffererSide(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	doctor := dialRelay(t, srv)
	joinRoom(t, doctor, "room_s1", "D1")

	patient := dialRelay(t, srv)
	joinRoom(t, patient, "room_s1", "P1")

	// The already-present peer hears about the newcomer and will
	// initiate the offer. Its very first inbound message is the
	// newcomer's arrival: joining an empty room produced nothing.
	msg := readMessage(t, doctor)
	assert.Equal(t, domain.MsgTypeUserConnected, field(t, msg, "type"))
	assert.Equal(t, "P1", field(t, msg, "user_id"))

	assertNoMessage(t, patient)
}

func TestSignalIsRelayedVerbatimWithSender(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	doctor := dialRelay(t, srv)
	joinRoom(t, doctor, "room_s1", "D1")
	patient := dialRelay(t, srv)
	joinRoom(t, patient, "room_s1", "P1")
	readMessage(t, doctor) // consume user-connected

	offer := `{"kind":"offer","sdp":"v=0 fake-offer"}`
	send(t, doctor, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		Room: "room_s1",
		Data: json.RawMessage(offer),
	})

	msg := readMessage(t, patient)
	assert.Equal(t, domain.MsgTypeSignal, field(t, msg, "type"))
	assert.Equal(t, "D1", field(t, msg, "sender"))
	assert.JSONEq(t, offer, string(msg["data"]))

	// The sender does not get its own signal back.
	assertNoMessage(t, doctor)
}

func TestSignalNeverCrossesRooms(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	a1 := dialRelay(t, srv)
	joinRoom(t, a1, "room_a", "U1")
	a2 := dialRelay(t, srv)
	joinRoom(t, a2, "room_a", "U2")
	readMessage(t, a1) // user-connected

	other := dialRelay(t, srv)
	joinRoom(t, other, "room_b", "U3")

	send(t, a1, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		Room: "room_a",
		Data: json.RawMessage(`{"kind":"candidate","candidate":{}}`),
	})

	msg := readMessage(t, a2)
	assert.Equal(t, domain.MsgTypeSignal, field(t, msg, "type"))

	assertNoMessage(t, other)
}

func TestSignalForForeignRoomIsRejected(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	b1 := dialRelay(t, srv)
	joinRoom(t, b1, "room_b", "V1")

	intruder := dialRelay(t, srv)
	joinRoom(t, intruder, "room_a", "U1")

	send(t, intruder, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		Room: "room_b",
		Data: json.RawMessage(`{"kind":"offer","sdp":"x"}`),
	})

	msg := readMessage(t, intruder)
	assert.Equal(t, domain.MsgTypeError, field(t, msg, "type"))
	assert.Equal(t, domain.ErrCodeForbidden, field(t, msg, "code"))

	// The target room saw nothing.
	assertNoMessage(t, b1)
}

func TestRejoinMovesClientBetweenRooms(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	stayer := dialRelay(t, srv)
	joinRoom(t, stayer, "room_a", "U2")

	mover := dialRelay(t, srv)
	joinRoom(t, mover, "room_a", "M1")
	msg := readMessage(t, stayer)
	assert.Equal(t, domain.MsgTypeUserConnected, field(t, msg, "type"))

	// Moving to another room ends membership in the first one.
	joinRoom(t, mover, "room_b", "M1")
	msg = readMessage(t, stayer)
	assert.Equal(t, domain.MsgTypeUserDisconnected, field(t, msg, "type"))
	assert.Equal(t, "M1", field(t, msg, "user_id"))

	send(t, stayer, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		Room: "room_a",
		Data: json.RawMessage(`{"kind":"offer","sdp":"x"}`),
	})

	// The mover's first inbound message is its new room's presence
	// event: the old room's signal never reached it.
	other := dialRelay(t, srv)
	joinRoom(t, other, "room_b", "U3")
	msg = readMessage(t, mover)
	assert.Equal(t, domain.MsgTypeUserConnected, field(t, msg, "type"))
	assert.Equal(t, "U3", field(t, msg, "user_id"))
}

func TestDisconnectIsAnnounced(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	doctor := dialRelay(t, srv)
	joinRoom(t, doctor, "room_s1", "D1")
	patient := dialRelay(t, srv)
	joinRoom(t, patient, "room_s1", "P1")
	readMessage(t, doctor) // user-connected

	require.NoError(t, patient.Close())

	msg := readMessage(t, doctor)
	assert.Equal(t, domain.MsgTypeUserDisconnected, field(t, msg, "type"))
	assert.Equal(t, "P1", field(t, msg, "user_id"))
}

func TestJoinWithToken(t *testing.T) {
	t.Parallel()

	srv, issuer := newRelayServer(t)

	valid, err := issuer.Issue("D1", "s1", "room_s1", domain.RoleDoctor)
	require.NoError(t, err)

	t.Run("valid token scoped to room", func(t *testing.T) {
		t.Parallel()
		conn := dialRelay(t, srv)
		send(t, conn, &domain.JoinRoomMessage{Type: domain.MsgTypeJoinRoom, Room: "room_s1", UserID: "D1", Token: valid})

		// Prove the join landed: a second peer's arrival is announced.
		peer := dialRelay(t, srv)
		joinRoom(t, peer, "room_s1", "P1")
		msg := readMessage(t, conn)
		assert.Equal(t, domain.MsgTypeUserConnected, field(t, msg, "type"))
	})

	t.Run("tampered token is dropped", func(t *testing.T) {
		t.Parallel()
		conn := dialRelay(t, srv)
		send(t, conn, &domain.JoinRoomMessage{Type: domain.MsgTypeJoinRoom, Room: "room_s1", UserID: "D1", Token: valid + "x"})
		msg := readMessage(t, conn)
		assert.Equal(t, domain.MsgTypeError, field(t, msg, "type"))
		assert.Equal(t, domain.ErrCodeUnauthorized, field(t, msg, "code"))
	})

	t.Run("token for another room is refused", func(t *testing.T) {
		t.Parallel()
		conn := dialRelay(t, srv)
		send(t, conn, &domain.JoinRoomMessage{Type: domain.MsgTypeJoinRoom, Room: "room_other", UserID: "D1", Token: valid})
		msg := readMessage(t, conn)
		assert.Equal(t, domain.MsgTypeError, field(t, msg, "type"))
		assert.Equal(t, domain.ErrCodeForbidden, field(t, msg, "code"))
	})
}

func TestMalformedFrameBurstDoesNotKillRelay(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	doctor := dialRelay(t, srv)
	joinRoom(t, doctor, "room_s1", "D1")
	patient := dialRelay(t, srv)
	joinRoom(t, patient, "room_s1", "P1")
	readMessage(t, doctor) // user-connected

	// Several bad frames can already sit in the socket buffer when
	// the first one gets the connection dropped; the relay must shrug
	// off the rest, not crash.
	offender := dialRelay(t, srv)
	for i := 0; i < 10; i++ {
		// Writes may fail once the relay severs the connection.
		if err := offender.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
			break
		}
	}

	msg := readMessage(t, offender)
	assert.Equal(t, domain.MsgTypeError, field(t, msg, "type"))

	// The relay process is still serving the established room.
	send(t, doctor, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		Room: "room_s1",
		Data: json.RawMessage(`{"kind":"offer","sdp":"x"}`),
	})
	relayed := readMessage(t, patient)
	assert.Equal(t, domain.MsgTypeSignal, field(t, relayed, "type"))

	// And still accepts new connections.
	late := dialRelay(t, srv)
	joinRoom(t, late, "room_s2", "U9")
	late2 := dialRelay(t, srv)
	joinRoom(t, late2, "room_s2", "U10")
	announced := readMessage(t, late)
	assert.Equal(t, domain.MsgTypeUserConnected, field(t, announced, "type"))
}

func TestMalformedPayloadDropsOnlyOffender(t *testing.T) {
	t.Parallel()

	srv, _ := newRelayServer(t)

	doctor := dialRelay(t, srv)
	joinRoom(t, doctor, "room_s1", "D1")
	patient := dialRelay(t, srv)
	joinRoom(t, patient, "room_s1", "P1")
	readMessage(t, doctor) // user-connected

	offender := dialRelay(t, srv)
	require.NoError(t, offender.WriteMessage(websocket.TextMessage, []byte("{not json")))

	msg := readMessage(t, offender)
	assert.Equal(t, domain.MsgTypeError, field(t, msg, "type"))

	// The offending connection is closed by the relay.
	offender.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := offender.ReadMessage()
	require.Error(t, err)

	// The established room still relays fine.
	send(t, doctor, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		Room: "room_s1",
		Data: json.RawMessage(`{"kind":"offer","sdp":"x"}`),
	})
	relayed := readMessage(t, patient)
	assert.Equal(t, domain.MsgTypeSignal, field(t, relayed, "type"))
}
