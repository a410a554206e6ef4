// Package callclient drives one endpoint of a two-party call: it
// decodes the join token, acquires local media, connects to the
// signaling relay and negotiates a peer connection. The peer that is
// already in the room when the other side joins creates the offer;
// the later joiner answers, so the two sides never offer at once.
package callclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/internal/token"
	"github.com/telemed-live/videocall-service/pkg/log"
)

// State is the call attempt's lifecycle position.
type State string

const (
	StateInit             State = "init"
	StateAcquiringMedia   State = "acquiring_media"
	StateConnectingSignal State = "connecting_signal"
	StateAwaitingPeer     State = "awaiting_peer"
	StateNegotiating      State = "negotiating"
	StateConnected        State = "connected"
	StateDisconnected     State = "disconnected"
	StateFailed           State = "failed"
)

var (
	ErrMissingToken = errors.New("join url carries no token")
	ErrRelayClosed  = errors.New("signaling connection lost")
)

// Peer is the peer connection driven by a Call. Adapters set their
// callbacks before negotiation starts and may invoke them from any
// goroutine.
type Peer interface {
	AddMedia(stream MediaStream) error
	// CreateOffer builds and locally applies an SDP offer.
	CreateOffer() (sdp string, err error)
	// CreateAnswer builds and locally applies an SDP answer to the
	// current remote description.
	CreateAnswer() (sdp string, err error)
	SetRemoteDescription(kind, sdp string) error
	AddRemoteCandidate(candidate json.RawMessage) error
	OnLocalCandidate(func(candidate json.RawMessage))
	// OnConnected fires once a remote track has arrived and the
	// connection reports connected.
	OnConnected(func())
	OnDisconnected(func())
	Close() error
}

// Config assembles one call attempt.
type Config struct {
	// JoinURL is the page URL handed out by the orchestrator; the
	// join token rides on its "token" query parameter.
	JoinURL string
	// SignalURL is the relay websocket endpoint.
	SignalURL string

	Media MediaSource
	Peer  Peer
	// Dial defaults to DialWebSocket.
	Dial SignalDialer

	// OnState, when set, observes every state transition.
	OnState func(State)
}

type evKind int

const (
	evMessage evKind = iota
	evLocalCandidate
	evPeerUp
	evPeerClosed
	evReadErr
)

type event struct {
	kind evKind
	data []byte
	err  error
}

// Call is a single call attempt. Run drives it to a terminal state.
type Call struct {
	cfg      Config
	rawToken string
	claims   *token.Claims

	mu      sync.RWMutex
	state   State
	lastErr error

	events chan event
	hangup chan struct{}
	done   chan struct{}

	hangupOnce sync.Once
}

// New validates the config and prepares a call in StateInit.
func New(cfg Config) (*Call, error) {
	if cfg.JoinURL == "" {
		return nil, errors.New("join url is required")
	}
	if cfg.SignalURL == "" {
		return nil, errors.New("signal url is required")
	}
	if cfg.Media == nil {
		return nil, errors.New("media source is required")
	}
	if cfg.Peer == nil {
		return nil, errors.New("peer is required")
	}
	if cfg.Dial == nil {
		cfg.Dial = DialWebSocket
	}

	return &Call{
		cfg:    cfg,
		state:  StateInit,
		events: make(chan event, 32),
		hangup: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (c *Call) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the error that ended the attempt, if any.
func (c *Call) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Claims returns the decoded join token claims, nil before Run has
// decoded them.
func (c *Call) Claims() *token.Claims {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.claims
}

// Hangup ends the attempt from the local side. Safe to call at any
// time, including more than once.
func (c *Call) Hangup() {
	c.hangupOnce.Do(func() { close(c.hangup) })
}

// Run drives the attempt until a terminal state and returns the error
// that caused StateFailed, or nil for StateDisconnected. Media and
// peer resources are released on every exit path.
func (c *Call) Run(ctx context.Context) error {
	defer close(c.done)

	claims, raw, err := decodeJoinURL(c.cfg.JoinURL)
	if err != nil {
		return c.fail(err)
	}
	c.mu.Lock()
	c.claims = claims
	c.rawToken = raw
	c.mu.Unlock()

	l := log.L().With().
		Str(log.FieldRoom, claims.RoomName).
		Str(log.FieldRole, claims.Role).
		Logger()

	defer c.cfg.Peer.Close()

	c.setState(StateAcquiringMedia)
	stream, err := c.cfg.Media.Acquire(ctx)
	if err != nil {
		l.Error().Err(err).Msg("media acquisition failed")
		return c.fail(err)
	}
	defer stream.Close()

	c.setState(StateConnectingSignal)
	conn, err := c.cfg.Dial(ctx, c.cfg.SignalURL)
	if err != nil {
		l.Error().Err(err).Msg("relay dial failed")
		return c.fail(fmt.Errorf("connecting to relay: %w", err))
	}
	defer conn.Close()

	if err := c.cfg.Peer.AddMedia(stream); err != nil {
		return c.fail(fmt.Errorf("attaching local media: %w", err))
	}

	c.cfg.Peer.OnLocalCandidate(func(candidate json.RawMessage) {
		c.post(event{kind: evLocalCandidate, data: candidate})
	})
	c.cfg.Peer.OnConnected(func() {
		c.post(event{kind: evPeerUp})
	})
	c.cfg.Peer.OnDisconnected(func() {
		c.post(event{kind: evPeerClosed})
	})

	if err := conn.Send(&domain.JoinRoomMessage{
		Type:   domain.MsgTypeJoinRoom,
		Room:   claims.RoomName,
		UserID: claims.Subject,
		Token:  raw,
	}); err != nil {
		return c.fail(fmt.Errorf("joining room: %w", err))
	}

	go func() {
		for {
			data, err := conn.Receive()
			if err != nil {
				c.post(event{kind: evReadErr, err: err})
				return
			}
			c.post(event{kind: evMessage, data: data})
		}
	}()

	c.setState(StateAwaitingPeer)

	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return nil
		case <-c.hangup:
			l.Info().Msg("local hangup")
			c.setState(StateDisconnected)
			return nil
		case ev := <-c.events:
			done, err := c.handle(conn, &l, ev)
			if err != nil {
				return c.fail(err)
			}
			if done {
				return nil
			}
		}
	}
}

// handle processes one event. It returns done=true when the attempt
// reached StateDisconnected.
func (c *Call) handle(conn SignalConn, l *zerolog.Logger, ev event) (bool, error) {
	switch ev.kind {
	case evLocalCandidate:
		return false, c.sendSignal(conn, &domain.SignalPayload{
			Kind:      domain.SignalKindCandidate,
			Candidate: ev.data,
		})

	case evPeerUp:
		c.setState(StateConnected)
		return false, nil

	case evPeerClosed:
		c.setState(StateDisconnected)
		return true, nil

	case evReadErr:
		if c.State() == StateConnected {
			// Media keeps flowing peer-to-peer; losing the relay
			// after connect only ends the signaling channel.
			c.setState(StateDisconnected)
			return true, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRelayClosed, ev.err)

	case evMessage:
		return c.handleMessage(conn, l, ev.data)
	}
	return false, nil
}

func (c *Call) handleMessage(conn SignalConn, l *zerolog.Logger, data []byte) (bool, error) {
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		l.Warn().Err(err).Msg("unreadable relay message dropped")
		return false, nil
	}

	switch base.Type {
	case domain.MsgTypeUserConnected:
		// We were in the room first, so we initiate.
		if c.State() != StateAwaitingPeer {
			return false, nil
		}
		offer, err := c.cfg.Peer.CreateOffer()
		if err != nil {
			return false, fmt.Errorf("creating offer: %w", err)
		}
		if err := c.sendSignal(conn, &domain.SignalPayload{
			Kind: domain.SignalKindOffer,
			SDP:  offer,
		}); err != nil {
			return false, err
		}
		c.setState(StateNegotiating)
		return false, nil

	case domain.MsgTypeUserDisconnected:
		l.Info().Msg("remote peer left")
		c.setState(StateDisconnected)
		return true, nil

	case domain.MsgTypeSignal:
		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.Warn().Err(err).Msg("unreadable signal dropped")
			return false, nil
		}
		var payload domain.SignalPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			l.Warn().Err(err).Msg("unreadable negotiation payload dropped")
			return false, nil
		}
		return false, c.handleNegotiation(conn, &payload)

	case domain.MsgTypeError:
		var msg domain.ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return false, errors.New("relay refused the connection")
		}
		return false, fmt.Errorf("relay refused the connection: %s", msg.Message)
	}

	return false, nil
}

func (c *Call) handleNegotiation(conn SignalConn, payload *domain.SignalPayload) error {
	switch payload.Kind {
	case domain.SignalKindOffer:
		if err := c.cfg.Peer.SetRemoteDescription(domain.SignalKindOffer, payload.SDP); err != nil {
			return fmt.Errorf("applying remote offer: %w", err)
		}
		answer, err := c.cfg.Peer.CreateAnswer()
		if err != nil {
			return fmt.Errorf("creating answer: %w", err)
		}
		if err := c.sendSignal(conn, &domain.SignalPayload{
			Kind: domain.SignalKindAnswer,
			SDP:  answer,
		}); err != nil {
			return err
		}
		c.setState(StateNegotiating)
		return nil

	case domain.SignalKindAnswer:
		if err := c.cfg.Peer.SetRemoteDescription(domain.SignalKindAnswer, payload.SDP); err != nil {
			return fmt.Errorf("applying remote answer: %w", err)
		}
		return nil

	case domain.SignalKindCandidate:
		if err := c.cfg.Peer.AddRemoteCandidate(payload.Candidate); err != nil {
			return fmt.Errorf("applying remote candidate: %w", err)
		}
		return nil
	}

	// Unknown negotiation kinds are dropped, not fatal.
	return nil
}

func (c *Call) sendSignal(conn SignalConn, payload *domain.SignalPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := conn.Send(&domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		Room: c.claims.RoomName,
		Data: data,
	}); err != nil {
		return fmt.Errorf("sending %s: %w", payload.Kind, err)
	}
	return nil
}

// post delivers an event unless the run loop has already exited.
func (c *Call) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Call) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Call) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.setState(StateFailed)
	return err
}

// decodeJoinURL extracts the join token from the URL and parses its
// claims. The signature is not checked here; only the relay and the
// orchestrator hold the signing secret.
func decodeJoinURL(joinURL string) (*token.Claims, string, error) {
	u, err := url.Parse(joinURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid join url: %w", err)
	}
	raw := u.Query().Get("token")
	if raw == "" {
		return nil, "", ErrMissingToken
	}
	claims, err := token.DecodeUnverified(raw)
	if err != nil {
		return nil, "", err
	}
	return claims, raw, nil
}
