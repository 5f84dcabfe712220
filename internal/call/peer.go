package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/media"
)

// PeerConnection is the negotiation surface the controller drives.
// *transport.Peer implements it on top of pion; tests use fakes.
type PeerConnection interface {
	CreateOffer(opts *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sd webrtc.SessionDescription) error
	SetRemoteDescription(sd webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription

	AddTrack(track webrtc.TrackLocal) error
	AddRecvOnly(kind webrtc.RTPCodecType) error
	AddICECandidate(c webrtc.ICECandidateInit) error

	// OnICECandidate reports gathered candidates; nil marks the end of gathering.
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState))
	OnTrack(fn func(track media.TrackReader, streamID string))

	Close() error
}

// PeerFactory creates the peer connection for one role.
type PeerFactory func(role config.Role) (PeerConnection, error)

// Notifier surfaces errors to the user. The CLI renders them as an alert box.
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

func (f NotifierFunc) Notify(err error) { f(err) }
