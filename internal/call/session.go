package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/media"
	"github.com/1ureka/loopcall/internal/signaling"
	"github.com/1ureka/loopcall/internal/util"
)

const byeTimeout = 2 * time.Second

// session is the state of one call: the endpoints hosted by this process and
// the terminal error, if any.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	endpoints [2]*endpoint // indexed by role; nil when the role lives elsewhere
	owned     []signaling.Channel

	local            *media.Stream
	remotePreview    *media.Preview
	notifier         Notifier
	restartOnFailure bool
	restartTimeout   time.Duration

	ended    chan struct{}
	endOnce  sync.Once
	downOnce sync.Once
	mu       sync.Mutex
	err      error
}

func (s *session) fail(err error) { s.end(err, false) }

// alert ends the call with err and shows it to the user. Only the call that
// actually sets the terminal error notifies.
func (s *session) alert(err error) { s.end(err, true) }

func (s *session) end(err error, notify bool) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if notify {
			s.notify(err)
		}
		close(s.ended)
	})
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// networked reports whether the counterpart lives in another process.
func (s *session) networked() bool { return len(s.owned) == 0 }

func (s *session) notify(err error) {
	if s.notifier != nil {
		s.notifier.Notify(err)
	}
}

func (s *session) openLocal() {
	if s.local != nil {
		s.local.Open()
	}
}

func (s *session) bindRemote(stream *media.Stream) {
	if s.remotePreview != nil {
		s.remotePreview.Bind(stream)
	}
}

// hosted returns the endpoints living in this process, offerer first.
func (s *session) hosted() []*endpoint {
	var out []*endpoint
	for _, role := range config.Roles {
		if ep := s.endpoints[role]; ep != nil {
			out = append(out, ep)
		}
	}
	return out
}

// wait blocks until ready is closed, the call ends, or ctx is done.
func (s *session) wait(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-s.ended:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown ends the call. A networked counterpart is told with a bye first.
// Safe to call more than once.
func (s *session) teardown() {
	s.downOnce.Do(s.shutdown)
}

func (s *session) shutdown() {
	hungUp := errors.Is(s.Err(), ErrHangup)
	s.fail(ErrEnded)

	if s.networked() && !hungUp {
		ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
		for _, ep := range s.hosted() {
			if err := ep.ch.Send(ctx, signalingBye(ep)); err != nil {
				util.LogDebug("[%s] failed to send bye: %v", ep.role, err)
			}
			// Late messages for this call must not reach the next one.
			ep.ch.OnMessage(func(signaling.Message) {})
		}
		cancel()
	}

	s.cancel()

	var errs []error
	for _, ep := range s.hosted() {
		errs = append(errs, ep.close())
	}
	for _, ch := range s.owned {
		errs = append(errs, ch.Close())
	}
	if err := errors.Join(errs...); err != nil {
		util.LogWarning("error while closing call: %v", err)
	}
}

func signalingBye(ep *endpoint) signaling.Message {
	return signaling.Message{Type: signaling.MsgTypeBye, From: ep.role}
}
