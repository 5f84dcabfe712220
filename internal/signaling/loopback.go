package signaling

import (
	"context"
)

// Loopback is one end of an in-process signaling link. It replaces the
// direct function calls between two peer connections living in the same
// process: what one end sends is queued for the other end's handler.
type Loopback struct {
	in   *inbox
	peer *Loopback
}

var _ Channel = (*Loopback)(nil)

// NewLoopback creates a linked pair of loopback channels.
func NewLoopback() (a, b *Loopback) {
	a = &Loopback{in: newInbox()}
	b = &Loopback{in: newInbox()}
	a.peer = b
	b.peer = a
	return a, b
}

// Send queues msg for the other end. It never blocks on the receiver.
func (l *Loopback) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.in.done:
		return ErrClosed
	default:
	}
	if !l.peer.in.push(msg) {
		return ErrClosed
	}
	return nil
}

func (l *Loopback) OnMessage(fn func(Message)) { l.in.setHandler(fn) }

func (l *Loopback) Done() <-chan struct{} { return l.in.done }

func (l *Loopback) Err() error { return l.in.stopErr() }

// Close stops this end. The other end's Send starts failing with ErrClosed.
func (l *Loopback) Close() error {
	l.in.stop(nil)
	return nil
}
