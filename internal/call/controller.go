// Package call drives a two-peer call: capture, offer/answer exchange, ICE
// candidate forwarding and teardown. Both peers may live in this process
// (loopback) or one of them may sit behind a networked signaling channel.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/media"
	"github.com/1ureka/loopcall/internal/signaling"
	"github.com/1ureka/loopcall/internal/util"
)

const (
	defaultRestartTimeout = 15 * time.Second
	defaultOfferRetry     = 2 * time.Second
)

var (
	ErrNoCapture  = errors.New("call: no local stream, start capture first")
	ErrCallActive = errors.New("call: a call is already in progress")
	ErrNoChannel  = errors.New("call: answering needs a signaling channel")
	ErrNoPeer     = errors.New("call: no peer factory configured")
	ErrRemote     = errors.New("call: counterpart failed")
	ErrHangup     = errors.New("call: counterpart hung up")
	ErrICEFailed  = errors.New("call: ICE connection failed")
	ErrEnded      = errors.New("call: ended")
)

// Options wires a Controller to its collaborators.
type Options struct {
	Device   media.Device
	NewPeer  PeerFactory
	Notifier Notifier // defaults to util.Alert

	// Channel leads to a counterpart in another process. Nil means both
	// peers are hosted here and talk over an in-process loopback.
	Channel signaling.Channel

	Constraints         config.Constraints
	OfferToReceiveVideo bool
	OfferToReceiveAudio bool
	RestartOnICEFailure bool

	// RestartTimeout bounds how long a failed ICE connection may take to
	// recover when RestartOnICEFailure is set. Defaults to 15s.
	RestartTimeout time.Duration

	// OfferRetry is how often an unanswered offer is repeated over a
	// networked channel. Defaults to 2s.
	OfferRetry time.Duration
}

// Controller owns the captured stream, the previews and the current call.
// Its methods are safe for concurrent use; pion callbacks only touch
// per-call state.
type Controller struct {
	opts Options

	localPreview  *media.Preview
	remotePreview *media.Preview

	mu     sync.Mutex
	stream *media.Stream
	call   *session
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(util.Alert)
	}
	if opts.RestartTimeout <= 0 {
		opts.RestartTimeout = defaultRestartTimeout
	}
	if opts.OfferRetry <= 0 {
		opts.OfferRetry = defaultOfferRetry
	}
	return &Controller{
		opts:          opts,
		localPreview:  media.NewPreview("local"),
		remotePreview: media.NewPreview("remote"),
	}
}

// LocalPreview shows the captured stream.
func (c *Controller) LocalPreview() *media.Preview { return c.localPreview }

// RemotePreview shows the received stream.
func (c *Controller) RemotePreview() *media.Preview { return c.remotePreview }

// Stream returns the captured stream, or nil.
func (c *Controller) Stream() *media.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// ---------------------------------------------------------------------------
// Capture
// ---------------------------------------------------------------------------

// StartCapture requests media from the device and binds it to the local
// preview. Failures are shown to the user and returned; the preview stays
// unbound. The stream cannot be replaced while a call is using it.
func (c *Controller) StartCapture(ctx context.Context) error {
	if c.current() != nil {
		return ErrCallActive
	}
	util.LogInfo("requesting local stream")

	stream, err := c.opts.Device.GetUserMedia(ctx, c.opts.Constraints)
	if err != nil {
		err = fmt.Errorf("failed to start capture: %w", err)
		c.opts.Notifier.Notify(err)
		return err
	}

	c.mu.Lock()
	if c.call != nil {
		c.mu.Unlock()
		stream.Stop()
		return ErrCallActive
	}
	prev := c.stream
	c.stream = stream
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	c.localPreview.Bind(stream)
	util.LogSuccess("received local stream %s with %d tracks", stream.ID(), len(stream.Tracks()))
	return nil
}

// StopCapture releases the captured stream and unbinds the local preview.
func (c *Controller) StopCapture() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream == nil {
		return
	}
	stream.Stop()
	c.localPreview.Unbind()
	util.LogInfo("local stream %s released", stream.ID())
}

// ---------------------------------------------------------------------------
// Call
// ---------------------------------------------------------------------------

// PlaceCall creates the local peer (and the remote one in loopback), attaches
// the captured tracks and negotiates. It returns once the answer has been
// applied on the local peer. Any failure ends the call.
func (c *Controller) PlaceCall(ctx context.Context) error {
	c.mu.Lock()
	if c.call != nil {
		c.mu.Unlock()
		return ErrCallActive
	}
	if c.stream == nil {
		c.mu.Unlock()
		return ErrNoCapture
	}
	s, err := c.newSession(c.stream)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	roles := []config.Role{config.RoleLocal}
	if c.opts.Channel == nil {
		roles = config.Roles[:]
	}
	if err := c.attach(s, roles); err != nil {
		c.mu.Unlock()
		s.teardown()
		return err
	}
	c.call = s
	c.mu.Unlock()

	util.LogInfo("starting call")
	local := s.endpoints[config.RoleLocal]

	if err := c.prepareOffer(local); err != nil {
		c.abort(s)
		return err
	}
	if err := local.offer(nil); err != nil {
		c.abort(s)
		return err
	}
	if s.networked() {
		go local.resendOffer(c.opts.OfferRetry)
	}

	if err := s.wait(ctx, local.answered); err != nil {
		c.abort(s)
		return err
	}
	util.LogSuccess("negotiation complete")
	return nil
}

// AwaitCall hosts the remote peer behind the configured channel and answers
// the incoming offer. It returns once the answer has been sent.
func (c *Controller) AwaitCall(ctx context.Context) error {
	if c.opts.Channel == nil {
		return ErrNoChannel
	}

	c.mu.Lock()
	if c.call != nil {
		c.mu.Unlock()
		return ErrCallActive
	}
	s, err := c.newSession(nil)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.attach(s, []config.Role{config.RoleRemote}); err != nil {
		c.mu.Unlock()
		s.teardown()
		return err
	}
	c.call = s
	c.mu.Unlock()

	util.LogInfo("waiting for an offer")
	if err := s.wait(ctx, s.endpoints[config.RoleRemote].answered); err != nil {
		c.abort(s)
		return err
	}
	util.LogSuccess("negotiation complete")
	return nil
}

// WaitConnected blocks until every hosted peer reports ICE connected.
func (c *Controller) WaitConnected(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return ErrEnded
	}
	for _, ep := range s.hosted() {
		if err := s.wait(ctx, ep.connected); err != nil {
			return err
		}
	}
	util.LogSuccess("call connected")
	return nil
}

// Ended is closed when the current call fails, is hung up by the counterpart
// or is ended locally. With no call in progress it returns nil.
func (c *Controller) Ended() <-chan struct{} {
	if s := c.current(); s != nil {
		return s.ended
	}
	return nil
}

// Err returns why the current call ended, or nil while it is running.
func (c *Controller) Err() error {
	if s := c.current(); s != nil {
		return s.Err()
	}
	return nil
}

// EndCall tears the current call down: peers are closed, a networked
// counterpart receives a bye and the remote preview is unbound. The captured
// stream is kept for the next call. Calling it with no call in progress is a
// no-op.
func (c *Controller) EndCall() {
	c.mu.Lock()
	s := c.call
	c.call = nil
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.teardown()
	c.remotePreview.Unbind()
	util.LogInfo("call ended")
}

// Peer returns the peer connection hosted for role in the current call.
func (c *Controller) Peer(role config.Role) PeerConnection {
	s := c.current()
	if s == nil || s.endpoints[role] == nil {
		return nil
	}
	return s.endpoints[role].pc
}

func (c *Controller) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call
}

// abort ends s if it is still the current call.
func (c *Controller) abort(s *session) {
	c.mu.Lock()
	if c.call == s {
		c.call = nil
	}
	c.mu.Unlock()

	s.teardown()
	c.remotePreview.Unbind()
}

func (c *Controller) newSession(local *media.Stream) (*session, error) {
	if c.opts.NewPeer == nil {
		return nil, ErrNoPeer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		ctx:              ctx,
		cancel:           cancel,
		local:            local,
		remotePreview:    c.remotePreview,
		notifier:         c.opts.Notifier,
		restartOnFailure: c.opts.RestartOnICEFailure,
		restartTimeout:   c.opts.RestartTimeout,
		ended:            make(chan struct{}),
	}, nil
}

// attach creates the peers for roles and connects each to its signaling end.
func (c *Controller) attach(s *session, roles []config.Role) error {
	var channels [2]signaling.Channel
	if c.opts.Channel != nil {
		for _, role := range roles {
			channels[role] = c.opts.Channel
		}
	} else {
		a, b := signaling.NewLoopback()
		channels[config.RoleLocal], channels[config.RoleRemote] = a, b
		s.owned = []signaling.Channel{a, b}
	}

	for _, role := range roles {
		pc, err := c.opts.NewPeer(role)
		if err != nil {
			return fmt.Errorf("%s peer: failed to create peer connection: %w", role, err)
		}
		util.LogInfo("[%s] created peer connection", role)
		s.endpoints[role] = newEndpoint(s, role, pc, channels[role])
	}
	return nil
}

// prepareOffer attaches the local tracks and the receive-only transceivers
// requested by the offer options.
func (c *Controller) prepareOffer(ep *endpoint) error {
	hasKind := map[webrtc.RTPCodecType]bool{}
	for _, t := range ep.s.local.Tracks() {
		if err := ep.pc.AddTrack(t.Local()); err != nil {
			return fmt.Errorf("%s peer: failed to add %s track: %w", ep.role, t.Kind, err)
		}
		hasKind[t.Kind] = true
	}
	ep.trace("added local stream to peer connection")

	want := map[webrtc.RTPCodecType]bool{
		webrtc.RTPCodecTypeAudio: c.opts.OfferToReceiveAudio,
		webrtc.RTPCodecTypeVideo: c.opts.OfferToReceiveVideo,
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if want[kind] && !hasKind[kind] {
			if err := ep.pc.AddRecvOnly(kind); err != nil {
				return fmt.Errorf("%s peer: failed to add %s transceiver: %w", ep.role, kind, err)
			}
		}
	}
	return nil
}
