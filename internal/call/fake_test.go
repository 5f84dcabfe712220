package call

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/media"
)

// Compile-time interface check.
var _ PeerConnection = (*fakePeer)(nil)

var errNoRemote = errors.New("fake: remote description not set")

// fakePeer records every call the controller makes. Like a real peer
// connection it emits its candidates asynchronously after
// SetLocalDescription and reports ICE "connected" once both descriptions
// are in place.
type fakePeer struct {
	role config.Role

	// Behavior, set before the call starts.
	candidates   []string
	offerErr     error
	setRemoteErr error

	mu            sync.Mutex
	local, remote *webrtc.SessionDescription
	offers        []*webrtc.OfferOptions
	setLocalCalls int
	remoteSets    int
	added         []string
	tracks        []webrtc.TrackLocal
	recvOnly      []webrtc.RTPCodecType
	closed        bool

	onCandidate func(*webrtc.ICECandidateInit)
	onState     func(webrtc.ICEConnectionState)
}

func (p *fakePeer) CreateOffer(opts *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = append(p.offers, opts)
	if p.offerErr != nil {
		return webrtc.SessionDescription{}, p.offerErr
	}
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fmt.Sprintf("offer-%s-%d", p.role, len(p.offers)),
	}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, errNoRemote
	}
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  "answer-to-" + p.remote.SDP,
	}, nil
}

func (p *fakePeer) SetLocalDescription(sd webrtc.SessionDescription) error {
	p.mu.Lock()
	p.setLocalCalls++
	p.local = &sd
	candidates := append([]string(nil), p.candidates...)
	onCandidate := p.onCandidate
	p.mu.Unlock()

	go func() {
		for _, c := range candidates {
			onCandidate(&webrtc.ICECandidateInit{Candidate: c})
		}
		onCandidate(nil)
	}()
	p.maybeConnect()
	return nil
}

func (p *fakePeer) SetRemoteDescription(sd webrtc.SessionDescription) error {
	p.mu.Lock()
	if p.setRemoteErr != nil {
		p.mu.Unlock()
		return p.setRemoteErr
	}
	p.remote = &sd
	p.remoteSets++
	p.mu.Unlock()

	p.maybeConnect()
	return nil
}

func (p *fakePeer) maybeConnect() {
	p.mu.Lock()
	ready := p.local != nil && p.remote != nil
	onState := p.onState
	p.mu.Unlock()

	if ready {
		go func() {
			onState(webrtc.ICEConnectionStateChecking)
			onState(webrtc.ICEConnectionStateConnected)
		}()
	}
}

func (p *fakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeer) AddRecvOnly(kind webrtc.RTPCodecType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recvOnly = append(p.recvOnly, kind)
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errNoRemote
	}
	p.added = append(p.added, c.Candidate)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnTrack(func(media.TrackReader, string)) {}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// emit reports an ICE state as if the agent had changed it.
func (p *fakePeer) emit(state webrtc.ICEConnectionState) {
	p.mu.Lock()
	onState := p.onState
	p.mu.Unlock()
	onState(state)
}

func (p *fakePeer) snapshot() (added []string, setLocal, remoteSets int, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.added...), p.setLocalCalls, p.remoteSets, p.closed
}

// fakeNet hands out fake peers and remembers them by role.
type fakeNet struct {
	configure func(*fakePeer)

	mu    sync.Mutex
	peers [2]*fakePeer
}

func (n *fakeNet) factory(role config.Role) (PeerConnection, error) {
	p := &fakePeer{role: role}
	if n.configure != nil {
		n.configure(p)
	}
	n.mu.Lock()
	n.peers[role] = p
	n.mu.Unlock()
	return p, nil
}

func (n *fakeNet) peer(role config.Role) *fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers[role]
}

// recordingNotifier stands in for the alert box.
type recordingNotifier struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingNotifier) Notify(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
