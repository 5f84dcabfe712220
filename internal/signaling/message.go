// Package signaling carries offer/answer/candidate messages between the two
// peers of a call. The Channel interface has an in-process loopback
// implementation and networked WebSocket and MQTT implementations, so the
// same negotiation logic runs inside one process or across the network.
package signaling

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/config"
)

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
	MsgTypeError     MessageType = "error" // the sender failed to apply or produce a description
	MsgTypeBye       MessageType = "bye"   // the sender ended the call
)

// Message is the JSON structure exchanged between peers.
type Message struct {
	Type      MessageType              `json:"type"`
	From      config.Role              `json:"from"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// ErrClosed is returned by Send after the channel has been closed.
var ErrClosed = errors.New("signaling: channel closed")

// Channel is one end of a signaling link.
type Channel interface {
	// Send delivers msg to the other end. Messages are delivered in the
	// order they were sent.
	Send(ctx context.Context, msg Message) error

	// OnMessage registers the handler for inbound messages. Messages that
	// arrive before a handler is registered are held, not dropped.
	OnMessage(fn func(Message))

	// Done is closed when the channel stops delivering messages.
	Done() <-chan struct{}

	// Err returns why the channel stopped, or nil after a local Close.
	Err() error

	Close() error
}
