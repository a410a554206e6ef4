package callclient

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// SignalConn is one live connection to the signaling relay.
type SignalConn interface {
	// Send marshals and writes one relay message.
	Send(v interface{}) error
	// Receive blocks for the next inbound relay message.
	Receive() ([]byte, error)
	Close() error
}

// SignalDialer opens a SignalConn to the given relay URL.
type SignalDialer func(ctx context.Context, url string) (SignalConn, error)

type wsSignalConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// DialWebSocket is the production SignalDialer: a websocket connection
// to the relay's /ws endpoint.
func DialWebSocket(ctx context.Context, url string) (SignalConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsSignalConn{conn: conn}, nil
}

func (c *wsSignalConn) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsSignalConn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsSignalConn) Close() error {
	return c.conn.Close()
}
