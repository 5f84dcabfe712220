package media

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/loopcall/internal/protocol"
)

// Preview is the terminal stand-in for a <video> element: it is bound to at
// most one stream at a time and "renders" every frame the stream emits by
// counting it and recording its capture-to-display latency.
type Preview struct {
	name string

	mu          sync.Mutex
	stream      *Stream
	unsubscribe func()

	frames  atomic.Int64
	latency atomic.Int64 // nanoseconds, last video frame
}

// NewPreview creates an unbound preview.
func NewPreview(name string) *Preview {
	return &Preview{name: name}
}

// Name returns the label given at construction ("local" / "remote").
func (p *Preview) Name() string { return p.name }

// Bind attaches the preview to s, replacing any previous stream.
func (p *Preview) Bind(s *Stream) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.stream = s
	p.unsubscribe = s.Subscribe(p.show)
}

// Unbind detaches the current stream, if any.
func (p *Preview) Unbind() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.stream = nil
}

// Stream returns the bound stream or nil.
func (p *Preview) Stream() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream
}

// Bound reports whether a stream is attached.
func (p *Preview) Bound() bool { return p.Stream() != nil }

// Frames returns how many frames have been shown since construction.
func (p *Preview) Frames() int64 { return p.frames.Load() }

// Latency returns the capture-to-display delay of the last video frame.
func (p *Preview) Latency() time.Duration { return time.Duration(p.latency.Load()) }

func (p *Preview) show(f *protocol.Frame) {
	p.frames.Add(1)
	if f.Kind == protocol.KindVideo {
		p.latency.Store(int64(f.Latency(time.Now())))
	}
}
