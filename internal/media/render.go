package media

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/protocol"
	"github.com/1ureka/loopcall/internal/util"
)

// TrackReader is the part of *webrtc.TrackRemote the renderer reads from.
type TrackReader interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

var _ TrackReader = (*webrtc.TrackRemote)(nil)

// depacketizerFor picks the RTP depacketizer matching the negotiated codec.
func depacketizerFor(mimeType string) rtp.Depacketizer {
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return &codecs.VP8Packet{}
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		return &codecs.OpusPacket{}
	default:
		return nil
	}
}

// Render reads RTP packets from a received track until it ends or ctx is
// cancelled. Packets are depacketized into samples, decoded into frames,
// put back in order and handed to sink. It returns nil on a clean end of
// track.
func Render(ctx context.Context, track TrackReader, sink func(*protocol.Frame)) error {
	dp := depacketizerFor(track.Codec().MimeType)
	if dp == nil {
		return errors.New("media: unsupported codec " + track.Codec().MimeType)
	}

	reorder := NewReorder(defaultReorderWindow)

	var (
		sample   []byte
		inSample bool
		lastSeq  uint16
		haveSeq  bool
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		// A gap in RTP sequence numbers breaks the sample being assembled.
		if haveSeq && pkt.SequenceNumber != lastSeq+1 {
			sample, inSample = sample[:0], false
		}
		lastSeq, haveSeq = pkt.SequenceNumber, true

		payload, err := dp.Unmarshal(pkt.Payload)
		if err != nil {
			util.LogDebug("[%s] failed to depacketize RTP %d: %v", track.ID(), pkt.SequenceNumber, err)
			sample, inSample = sample[:0], false
			continue
		}

		if !inSample {
			if !dp.IsPartitionHead(pkt.Payload) {
				continue
			}
			inSample = true
		}
		sample = append(sample, payload...)

		if !dp.IsPartitionTail(pkt.Marker, pkt.Payload) {
			continue
		}

		f, err := protocol.Decode(sample)
		sample, inSample = sample[:0], false
		if err != nil {
			util.LogDebug("[%s] failed to decode frame: %v", track.ID(), err)
			continue
		}

		util.Stats.AddRecv(len(f.Payload) + protocol.HeaderSize)
		for _, ready := range reorder.Feed(f) {
			sink(ready)
		}
	}
}
