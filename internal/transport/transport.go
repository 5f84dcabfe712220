// Package transport wraps a pion PeerConnection behind the small surface the
// call controller negotiates with.
package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/media"
	"github.com/1ureka/loopcall/internal/util"
)

// Peer is one negotiation endpoint backed by a real PeerConnection.
//
// Its lifecycle is governed by Close. The PeerConnection state is recorded
// for diagnostics but does not drive any decision here; the controller reacts
// to ICE state instead.
type Peer struct {
	role config.Role
	pc   *webrtc.PeerConnection

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewPeer creates a Peer for role.
func NewPeer(role config.Role, opts Options) (*Peer, error) {
	pc, err := newPeerConnection(opts)
	if err != nil {
		return nil, err
	}

	p := &Peer{role: role, pc: pc, pcState: webrtc.PeerConnectionStateNew}

	// Record PC state (informational only).
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("[%s] PeerConnection state: %s", role, state)
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()
	})

	return p, nil
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// Close shuts down the PeerConnection.
func (p *Peer) Close() error {
	return p.pc.Close()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer. opts may be nil.
func (p *Peer) CreateOffer(opts *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(opts)
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (p *Peer) SetLocalDescription(sd webrtc.SessionDescription) error {
	if err := p.pc.SetLocalDescription(sd); err != nil {
		return err
	}
	util.LogDebug("[%s] local %s: %s", p.role, sd.Type, Summarize(sd.SDP))
	return nil
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(sd); err != nil {
		return err
	}
	util.LogDebug("[%s] remote %s: %s", p.role, sd.Type, Summarize(sd.SDP))
	return nil
}

// LocalDescription returns the applied local description, or nil.
func (p *Peer) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

// RemoteDescription returns the applied remote description, or nil.
func (p *Peer) RemoteDescription() *webrtc.SessionDescription {
	return p.pc.RemoteDescription()
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

// OnICEConnectionStateChange registers the ICE state callback.
func (p *Peer) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	p.pc.OnICEConnectionStateChange(fn)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddTrack attaches a local track. Inbound RTCP for it is drained in the
// background so the interceptors (NACK, reports) keep running.
func (p *Peer) AddTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// AddRecvOnly adds a receive-only transceiver of kind, the equivalent of
// offerToReceiveVideo / offerToReceiveAudio.
func (p *Peer) AddRecvOnly(kind webrtc.RTPCodecType) error {
	_, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

// OnTrack registers a callback invoked for every received remote track with
// the msid stream it belongs to.
func (p *Peer) OnTrack(fn func(track media.TrackReader, streamID string)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track, track.StreamID())
	})
}
