package media

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/loopcall/internal/protocol"
	"github.com/1ureka/loopcall/internal/util"
)

// sampleWriter is the part of *webrtc.TrackLocalStaticSample the pump needs.
type sampleWriter interface {
	ID() string
	WriteSample(pionmedia.Sample) error
}

var _ sampleWriter = (*webrtc.TrackLocalStaticSample)(nil)

// pump is a per-track sample writer. It stays idle until the stream is
// opened, then generates one frame per interval and writes it to the track.
type pump struct {
	track    sampleWriter
	kind     uint8
	interval time.Duration
	payload  func(seq uint32) []byte
	emit     func(*protocol.Frame)

	seq uint32
}

// loop is the single-writer goroutine. It exits when ctx is cancelled or the
// track rejects a write.
func (p *pump) loop(ctx context.Context, openSignal <-chan struct{}) {
	// Phase 1: wait for the call to be connected.
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	// Phase 2: one sample per tick.
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if err := p.writeFrame(now); err != nil {
				util.LogError("failed to write sample (track=%s): %v", p.track.ID(), err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeFrame builds the next frame, hands it to local sinks and writes it to
// the track.
func (p *pump) writeFrame(now time.Time) error {
	p.seq++
	f := &protocol.Frame{
		Kind:       p.kind,
		SeqNum:     p.seq,
		CapturedAt: now,
		Payload:    p.payload(p.seq),
	}

	if p.emit != nil {
		p.emit(f)
	}

	data := protocol.Encode(f)
	if err := p.track.WriteSample(pionmedia.Sample{Data: data, Duration: p.interval}); err != nil {
		return err
	}

	util.Stats.AddSent(len(data))
	return nil
}
