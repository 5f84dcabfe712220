package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/config"
	"github.com/1ureka/loopcall/internal/protocol"
)

// Capture errors.
var (
	// ErrPermissionDenied is returned when the user refused access to the
	// camera/microphone.
	ErrPermissionDenied = errors.New("media: permission denied")

	// ErrNoConstraints is returned when neither audio nor video was requested.
	ErrNoConstraints = errors.New("media: at least one of audio or video must be requested")
)

// Device is a permission-gated capture device.
type Device interface {
	// GetUserMedia acquires the requested kinds of tracks and returns them
	// as a running stream.
	GetUserMedia(ctx context.Context, c config.Constraints) (*Stream, error)
}

// Default synthetic payload sizes. Both stay below one RTP packet so a frame
// maps to exactly one packet on the wire.
const (
	videoPayloadSize = 640
	audioPayloadSize = 120
	audioInterval    = 20 * time.Millisecond
)

// SyntheticDevice produces a moving test pattern and silence instead of
// reading real hardware, so the demo runs headless and in tests.
type SyntheticDevice struct {
	FrameRate int  // video frames per second; 30 when zero
	Denied    bool // simulate the user refusing the permission prompt
}

// GetUserMedia implements Device. Tracks are ordered audio first, then
// video, matching what browsers return.
func (d *SyntheticDevice) GetUserMedia(ctx context.Context, c config.Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, ErrNoConstraints
	}
	if d.Denied {
		return nil, ErrPermissionDenied
	}

	fps := d.FrameRate
	if fps <= 0 {
		fps = 30
	}

	s := newStream(context.Background(), uuid.NewString())

	if c.Audio {
		local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}, "audio-"+uuid.NewString(), s.id)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		s.addTrack(&Track{ID: local.ID(), Kind: webrtc.RTPCodecTypeAudio, local: local})

		p := &pump{
			track:    local,
			kind:     protocol.KindAudio,
			interval: audioInterval,
			payload:  silence,
			emit:     s.Emit,
		}
		go p.loop(s.ctx, s.openSignal)
	}

	if c.Video {
		local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		}, "video-"+uuid.NewString(), s.id)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		s.addTrack(&Track{ID: local.ID(), Kind: webrtc.RTPCodecTypeVideo, local: local})

		p := &pump{
			track:    local,
			kind:     protocol.KindVideo,
			interval: time.Second / time.Duration(fps),
			payload:  testPattern,
			emit:     s.Emit,
		}
		go p.loop(s.ctx, s.openSignal)
	}

	return s, nil
}

// testPattern returns a diagonal gradient that shifts by one step per frame.
func testPattern(seq uint32) []byte {
	buf := make([]byte, videoPayloadSize)
	for i := range buf {
		buf[i] = byte(uint32(i) + seq)
	}
	return buf
}

func silence(uint32) []byte {
	return make([]byte, audioPayloadSize)
}
