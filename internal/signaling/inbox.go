package signaling

import (
	"sync"
)

// inbox is an unbounded, ordered message queue drained by a single delivery
// goroutine. Handlers may call Send on the opposite direction without any
// risk of the two directions blocking each other.
type inbox struct {
	mu      sync.Mutex
	queue   []Message
	handler func(Message)
	notify  chan struct{}

	finishing bool
	finishErr error

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func newInbox() *inbox {
	in := &inbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go in.loop()
	return in
}

func (in *inbox) poke() {
	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// push appends msg to the queue. Returns false once the inbox is stopped.
func (in *inbox) push(msg Message) bool {
	select {
	case <-in.done:
		return false
	default:
	}

	in.mu.Lock()
	in.queue = append(in.queue, msg)
	in.mu.Unlock()
	in.poke()
	return true
}

func (in *inbox) setHandler(fn func(Message)) {
	in.mu.Lock()
	in.handler = fn
	in.mu.Unlock()
	in.poke()
}

// stop ends delivery. The first non-nil err is kept for Err().
func (in *inbox) stop(err error) {
	in.doneOnce.Do(func() {
		in.mu.Lock()
		in.err = err
		in.mu.Unlock()
		close(in.done)
	})
}

// finish stops the inbox once the queued messages have been delivered. Used
// when the underlying connection is gone but a final message (bye) may still
// be waiting for the handler.
func (in *inbox) finish(err error) {
	in.mu.Lock()
	in.finishing = true
	in.finishErr = err
	in.mu.Unlock()
	in.poke()
}

func (in *inbox) stopErr() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

// loop delivers queued messages in order, holding them while no handler is set.
func (in *inbox) loop() {
	for {
		select {
		case <-in.notify:
		case <-in.done:
			return
		}

		for {
			in.mu.Lock()
			if in.handler == nil || len(in.queue) == 0 {
				finishing, err := in.finishing, in.finishErr
				in.mu.Unlock()
				if finishing {
					in.stop(err)
					return
				}
				break
			}
			msg := in.queue[0]
			in.queue = in.queue[1:]
			fn := in.handler
			in.mu.Unlock()

			select {
			case <-in.done:
				return
			default:
			}
			fn(msg)
		}
	}
}
