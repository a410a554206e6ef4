package callclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// trackProvider is implemented by MediaStreams that carry WebRTC-ready
// local tracks.
type trackProvider interface {
	WebRTCTracks() []webrtc.TrackLocal
}

// TrackStream is a MediaStream backed by locally constructed WebRTC
// tracks, for headless clients that synthesize media instead of
// capturing devices.
type TrackStream struct {
	tracks []webrtc.TrackLocal
}

// NewTrackStream wraps the given local tracks.
func NewTrackStream(tracks ...webrtc.TrackLocal) *TrackStream {
	return &TrackStream{tracks: tracks}
}

func (s *TrackStream) WebRTCTracks() []webrtc.TrackLocal {
	return s.tracks
}

func (s *TrackStream) Close() error {
	return nil
}

// PionPeer adapts a pion RTCPeerConnection to the Peer interface.
type PionPeer struct {
	pc *webrtc.PeerConnection

	mu             sync.Mutex
	onCandidate    func(json.RawMessage)
	onConnected    func()
	onDisconnected func()
	haveTrack      bool
	haveTransport  bool
	announcedUp    bool
}

// NewPionPeer creates a peer connection with the given WebRTC
// configuration (STUN/TURN servers and the like).
func NewPionPeer(cfg webrtc.Configuration) (*PionPeer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	p := &PionPeer{pc: pc}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return // end-of-candidates marker
		}
		data, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			return
		}
		p.mu.Lock()
		cb := p.onCandidate
		p.mu.Unlock()
		if cb != nil {
			cb(data)
		}
	})

	pc.OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
		p.mu.Lock()
		p.haveTrack = true
		p.mu.Unlock()
		p.maybeAnnounceUp()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			p.mu.Lock()
			p.haveTransport = true
			p.mu.Unlock()
			p.maybeAnnounceUp()
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			p.mu.Lock()
			cb := p.onDisconnected
			p.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
	})

	return p, nil
}

// maybeAnnounceUp fires OnConnected once both a remote track and a
// connected transport have been observed, in either order.
func (p *PionPeer) maybeAnnounceUp() {
	p.mu.Lock()
	ready := p.haveTrack && p.haveTransport && !p.announcedUp
	if ready {
		p.announcedUp = true
	}
	cb := p.onConnected
	p.mu.Unlock()
	if ready && cb != nil {
		cb()
	}
}

func (p *PionPeer) AddMedia(stream MediaStream) error {
	provider, ok := stream.(trackProvider)
	if !ok {
		return errors.New("media stream carries no webrtc tracks")
	}
	for _, track := range provider.WebRTCTracks() {
		if _, err := p.pc.AddTrack(track); err != nil {
			return fmt.Errorf("adding local track: %w", err)
		}
	}
	return nil
}

func (p *PionPeer) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (p *PionPeer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (p *PionPeer) SetRemoteDescription(kind, sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(kind),
		SDP:  sdp,
	})
}

func (p *PionPeer) AddRemoteCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decoding remote candidate: %w", err)
	}
	return p.pc.AddICECandidate(init)
}

func (p *PionPeer) OnLocalCandidate(cb func(json.RawMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = cb
}

func (p *PionPeer) OnConnected(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConnected = cb
}

func (p *PionPeer) OnDisconnected(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDisconnected = cb
}

func (p *PionPeer) Close() error {
	return p.pc.Close()
}
