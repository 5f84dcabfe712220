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

// endpoint is one role of a call: a peer connection plus the signaling
// channel leading to its counterpart. All inbound messages are handled on the
// channel's single delivery goroutine, so description and candidate handling
// never race with each other.
type endpoint struct {
	role config.Role
	pc   PeerConnection
	ch   signaling.Channel
	s    *session

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	stream    *media.Stream // received media, remote role only
	recovered chan struct{} // non-nil while waiting out an ICE failure

	lastOffer    string // offerer: SDP of the offer in flight
	remoteAnswer string // offerer: SDP of the answer last applied
	remoteOffer  string // answerer: SDP of the offer last answered
	sent        []webrtc.ICECandidateInit

	answered     chan struct{} // offerer: answer applied; answerer: answer sent
	answeredOnce sync.Once
	connected    chan struct{}
	connOnce     sync.Once
}

func newEndpoint(s *session, role config.Role, pc PeerConnection, ch signaling.Channel) *endpoint {
	ep := &endpoint{
		role:      role,
		pc:        pc,
		ch:        ch,
		s:         s,
		answered:  make(chan struct{}),
		connected: make(chan struct{}),
	}

	pc.OnICECandidate(ep.onICECandidate)
	pc.OnICEConnectionStateChange(ep.onICEStateChange)
	pc.OnTrack(ep.onTrack)
	ch.OnMessage(ep.handle)

	return ep
}

func (ep *endpoint) trace(format string, args ...interface{}) {
	util.LogInfo("[%s] "+format, append([]interface{}{ep.role}, args...)...)
}

func (ep *endpoint) send(msg signaling.Message) error {
	msg.From = ep.role
	return ep.ch.Send(ep.s.ctx, msg)
}

func (ep *endpoint) markAnswered() { ep.answeredOnce.Do(func() { close(ep.answered) }) }

func (ep *endpoint) markConnected() { ep.connOnce.Do(func() { close(ep.connected) }) }

// ---------------------------------------------------------------------------
// Offer side
// ---------------------------------------------------------------------------

// offer creates an offer, applies it locally and forwards it. A failed
// CreateOffer returns before any description is touched.
func (ep *endpoint) offer(opts *webrtc.OfferOptions) error {
	ep.trace("createOffer start")
	offer, err := ep.pc.CreateOffer(opts)
	if err != nil {
		return fmt.Errorf("%s peer: failed to create offer: %w", ep.role, err)
	}

	ep.mu.Lock()
	ep.lastOffer = offer.SDP
	ep.sent = nil
	ep.mu.Unlock()

	ep.trace("setLocalDescription start")
	if err := ep.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%s peer: failed to set local description: %w", ep.role, err)
	}
	ep.trace("setLocalDescription complete")

	if err := ep.send(signaling.Message{Type: signaling.MsgTypeOffer, SDP: offer.SDP}); err != nil {
		return fmt.Errorf("%s peer: failed to send offer: %w", ep.role, err)
	}
	return nil
}

// resendOffer repeats the offer and the candidates gathered so far every
// interval until an answer arrives. A networked counterpart may not be
// listening yet when the first copy goes out.
func (ep *endpoint) resendOffer(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ep.answered:
			return
		case <-ep.s.ctx.Done():
			return
		case <-t.C:
		}

		ep.mu.Lock()
		sdp := ep.lastOffer
		sent := append([]webrtc.ICECandidateInit(nil), ep.sent...)
		ep.mu.Unlock()

		ep.trace("no answer yet, resending offer")
		if err := ep.send(signaling.Message{Type: signaling.MsgTypeOffer, SDP: sdp}); err != nil {
			util.LogDebug("[%s] failed to resend offer: %v", ep.role, err)
			continue
		}
		for i := range sent {
			if err := ep.send(signaling.Message{Type: signaling.MsgTypeCandidate, Candidate: &sent[i]}); err != nil {
				util.LogDebug("[%s] failed to resend ICE candidate: %v", ep.role, err)
				break
			}
		}
	}
}

// restart renegotiates with fresh ICE credentials after a failure.
func (ep *endpoint) restart() {
	util.LogWarning("[%s] ICE failed, restarting ICE", ep.role)
	if err := ep.offer(&webrtc.OfferOptions{ICERestart: true}); err != nil {
		ep.s.alert(fmt.Errorf("ICE restart: %w", err))
	}
}

// ---------------------------------------------------------------------------
// Inbound messages
// ---------------------------------------------------------------------------

func (ep *endpoint) handle(msg signaling.Message) {
	switch msg.Type {
	case signaling.MsgTypeOffer:
		ep.mu.Lock()
		dup := msg.SDP == ep.remoteOffer
		ep.mu.Unlock()
		if dup {
			util.LogDebug("[%s] ignoring repeated offer", ep.role)
			return
		}
		if err := ep.handleOffer(msg.SDP); err != nil {
			util.LogError("%v", err)
			// An in-process counterpart shares the session and sees err directly.
			if ep.s.networked() {
				if sendErr := ep.send(signaling.Message{Type: signaling.MsgTypeError, Error: err.Error()}); sendErr != nil {
					util.LogWarning("[%s] failed to report error to %s: %v", ep.role, msg.From, sendErr)
				}
			}
			ep.s.fail(err)
		}

	case signaling.MsgTypeAnswer:
		ep.mu.Lock()
		dup := msg.SDP == ep.remoteAnswer
		ep.mu.Unlock()
		if dup {
			util.LogDebug("[%s] ignoring repeated answer", ep.role)
			return
		}
		if err := ep.applyRemote(webrtc.SDPTypeAnswer, msg.SDP); err != nil {
			util.LogError("%v", err)
			ep.s.fail(err)
			return
		}
		ep.mu.Lock()
		ep.remoteAnswer = msg.SDP
		ep.mu.Unlock()
		ep.markAnswered()

	case signaling.MsgTypeCandidate:
		if msg.Candidate != nil {
			ep.addCandidate(*msg.Candidate)
		}

	case signaling.MsgTypeError:
		ep.s.fail(fmt.Errorf("%w: %s", ErrRemote, msg.Error))

	case signaling.MsgTypeBye:
		ep.trace("%s hung up", msg.From)
		ep.s.fail(ErrHangup)

	default:
		util.LogWarning("[%s] ignoring unknown signaling message %q", ep.role, msg.Type)
	}
}

func (ep *endpoint) handleOffer(sdp string) error {
	if err := ep.applyRemote(webrtc.SDPTypeOffer, sdp); err != nil {
		return err
	}
	ep.mu.Lock()
	ep.remoteOffer = sdp
	ep.mu.Unlock()

	ep.trace("createAnswer start")
	answer, err := ep.pc.CreateAnswer()
	if err != nil {
		return fmt.Errorf("%s peer: failed to create answer: %w", ep.role, err)
	}

	ep.trace("setLocalDescription start")
	if err := ep.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%s peer: failed to set local description: %w", ep.role, err)
	}
	ep.trace("setLocalDescription complete")

	if err := ep.send(signaling.Message{Type: signaling.MsgTypeAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("%s peer: failed to send answer: %w", ep.role, err)
	}
	ep.markAnswered()
	return nil
}

// applyRemote sets the remote description and flushes the candidates that
// arrived before it.
func (ep *endpoint) applyRemote(typ webrtc.SDPType, sdp string) error {
	ep.trace("setRemoteDescription start")
	if err := ep.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("%s peer: failed to set remote description: %w", ep.role, err)
	}
	ep.trace("setRemoteDescription complete")

	ep.mu.Lock()
	ep.remoteSet = true
	pending := ep.pending
	ep.pending = nil
	ep.mu.Unlock()

	if len(pending) > 0 {
		ep.trace("flushing %d queued ICE candidates", len(pending))
	}
	for _, c := range pending {
		ep.applyCandidate(c)
	}
	return nil
}

// addCandidate applies c, or queues it while no remote description is set.
func (ep *endpoint) addCandidate(c webrtc.ICECandidateInit) {
	ep.mu.Lock()
	if !ep.remoteSet {
		ep.pending = append(ep.pending, c)
		ep.mu.Unlock()
		return
	}
	ep.mu.Unlock()

	ep.applyCandidate(c)
}

// applyCandidate failures are logged and counted; the call may still succeed
// through other candidates.
func (ep *endpoint) applyCandidate(c webrtc.ICECandidateInit) {
	if err := ep.pc.AddICECandidate(c); err != nil {
		util.Stats.CandidateErrors.Add(1)
		util.LogWarning("[%s] failed to add ICE candidate: %v", ep.role, err)
		return
	}
	util.Stats.CandidatesAdded.Add(1)
	util.LogDebug("[%s] addIceCandidate success: %s", ep.role, c.Candidate)
}

// ---------------------------------------------------------------------------
// Peer connection events
// ---------------------------------------------------------------------------

func (ep *endpoint) onICECandidate(c *webrtc.ICECandidateInit) {
	if c == nil {
		ep.trace("ICE gathering complete")
		return
	}

	if err := ep.send(signaling.Message{Type: signaling.MsgTypeCandidate, Candidate: c}); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, signaling.ErrClosed) {
			util.LogWarning("[%s] failed to forward ICE candidate: %v", ep.role, err)
		}
		return
	}
	ep.mu.Lock()
	ep.sent = append(ep.sent, *c)
	ep.mu.Unlock()
	util.Stats.CandidatesSent.Add(1)
	util.LogDebug("[%s] ICE candidate: %s", ep.role, c.Candidate)
}

func (ep *endpoint) onICEStateChange(state webrtc.ICEConnectionState) {
	ep.trace("ICE state: %s", state)

	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		ep.mu.Lock()
		if ep.recovered != nil {
			close(ep.recovered)
			ep.recovered = nil
		}
		ep.mu.Unlock()
		ep.markConnected()
		if ep.role == config.RoleLocal {
			ep.s.openLocal()
		}

	case webrtc.ICEConnectionStateDisconnected:
		util.LogWarning("[%s] ICE disconnected, waiting for it to recover", ep.role)

	case webrtc.ICEConnectionStateFailed:
		if ep.s.restartOnFailure {
			ep.awaitRecovery()
			return
		}
		ep.s.alert(fmt.Errorf("%w (%s peer)", ErrICEFailed, ep.role))
	}
}

// awaitRecovery gives a failed ICE agent restartTimeout to reconnect. The
// offerer renegotiates with fresh credentials; the answerer waits for that
// offer. Repeated failures while already waiting share the same deadline.
func (ep *endpoint) awaitRecovery() {
	ep.mu.Lock()
	if ep.recovered != nil {
		ep.mu.Unlock()
		return
	}
	recovered := make(chan struct{})
	ep.recovered = recovered
	ep.mu.Unlock()

	if ep.role == config.RoleLocal {
		go ep.restart()
	} else {
		util.LogWarning("[%s] ICE failed, waiting for an ICE restart from %s", ep.role, ep.role.Other())
	}

	go func() {
		t := time.NewTimer(ep.s.restartTimeout)
		defer t.Stop()

		select {
		case <-recovered:
			ep.trace("ICE recovered")
		case <-ep.s.ctx.Done():
		case <-t.C:
			ep.s.alert(fmt.Errorf("%w (%s peer, no recovery within %s)", ErrICEFailed, ep.role, ep.s.restartTimeout))
		}
	}()
}

func (ep *endpoint) onTrack(track media.TrackReader, streamID string) {
	ep.mu.Lock()
	first := ep.stream == nil
	if first {
		ep.stream = media.NewRemoteStream(streamID)
	}
	stream := ep.stream
	ep.mu.Unlock()

	stream.AddRemoteTrack(track.ID(), track.Kind())
	ep.trace("received remote %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)

	if first {
		stream.Open()
		ep.s.bindRemote(stream)
	}

	go func() {
		if err := media.Render(ep.s.ctx, track, stream.Emit); err != nil {
			util.LogWarning("[%s] renderer for %s stopped: %v", ep.role, track.ID(), err)
		}
	}()
}

// close stops received media and the peer connection.
func (ep *endpoint) close() error {
	ep.mu.Lock()
	stream := ep.stream
	ep.mu.Unlock()
	if stream != nil {
		stream.Stop()
	}
	return ep.pc.Close()
}
