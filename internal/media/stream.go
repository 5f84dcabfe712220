// Package media models captured and received media: streams of tracks, a
// synthetic capture device, the sample pumps feeding local tracks and the
// renderer consuming remote ones.
package media

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/protocol"
)

// Track is one audio or video track of a Stream. Local tracks carry the
// pion track that gets attached to a peer connection; remote tracks only
// describe what was received.
type Track struct {
	ID   string
	Kind webrtc.RTPCodecType

	local *webrtc.TrackLocalStaticSample
}

// Local returns the pion track to attach with AddTrack, or nil for a
// received track.
func (t *Track) Local() webrtc.TrackLocal {
	if t.local == nil {
		return nil
	}
	return t.local
}

// Stream is an ordered set of tracks. For a captured stream its lifetime is
// bound to a context that Stop cancels; sample pumps stay idle until Open.
type Stream struct {
	id string

	ctx    context.Context
	cancel context.CancelFunc

	openSignal chan struct{}
	openOnce   sync.Once

	mu     sync.Mutex
	tracks []*Track
	sinks  map[int]func(*protocol.Frame)
	nextID int
}

func newStream(parent context.Context, id string) *Stream {
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		openSignal: make(chan struct{}),
		sinks:      make(map[int]func(*protocol.Frame)),
	}
}

// NewRemoteStream creates an empty stream that collects received tracks.
func NewRemoteStream(id string) *Stream {
	if id == "" {
		id = uuid.NewString()
	}
	return newStream(context.Background(), id)
}

// ID returns the stream identifier (the msid used in SDP for local streams).
func (s *Stream) ID() string { return s.id }

// Tracks returns a copy of the track list in insertion order.
func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AddRemoteTrack records a received track and returns its descriptor.
func (s *Stream) AddRemoteTrack(id string, kind webrtc.RTPCodecType) *Track {
	t := &Track{ID: id, Kind: kind}
	s.addTrack(t)
	return t
}

func (s *Stream) addTrack(t *Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// Open releases the sample pumps. Safe to call multiple times.
func (s *Stream) Open() {
	s.openOnce.Do(func() { close(s.openSignal) })
}

// Opened returns a channel that is closed once Open has been called.
func (s *Stream) Opened() <-chan struct{} { return s.openSignal }

// Stop releases the capture sources. Safe to call multiple times.
func (s *Stream) Stop() { s.cancel() }

// Done is closed when the stream has been stopped.
func (s *Stream) Done() <-chan struct{} { return s.ctx.Done() }

// Subscribe registers a sink invoked for every frame flowing through the
// stream. It returns a function that removes the sink.
func (s *Stream) Subscribe(fn func(*protocol.Frame)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.sinks[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.sinks, id)
		s.mu.Unlock()
	}
}

// Emit hands a frame to every subscribed sink.
func (s *Stream) Emit(f *protocol.Frame) {
	s.mu.Lock()
	snapshot := make([]func(*protocol.Frame), 0, len(s.sinks))
	for _, fn := range s.sinks {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(f)
	}
}
