package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Encode serializes a Frame into a byte slice used as sample data.
func Encode(f *Frame) []byte {
	size := HeaderSize + len(f.Payload)
	buf := make([]byte, size)
	buf[0] = f.Kind
	binary.BigEndian.PutUint32(buf[1:5], f.SeqNum)
	binary.BigEndian.PutUint64(buf[5:13], uint64(f.CapturedAt.UnixNano()))
	if len(f.Payload) > 0 {
		copy(buf[HeaderSize:], f.Payload)
	}
	return buf
}

// Decode deserializes sample data into a Frame.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes (need at least %d)", len(data), HeaderSize)
	}
	f := &Frame{
		Kind:       data[0],
		SeqNum:     binary.BigEndian.Uint32(data[1:5]),
		CapturedAt: time.Unix(0, int64(binary.BigEndian.Uint64(data[5:13]))),
	}
	if f.Kind != KindVideo && f.Kind != KindAudio {
		return nil, fmt.Errorf("unknown frame kind 0x%02x", f.Kind)
	}
	if len(data) > HeaderSize {
		f.Payload = make([]byte, len(data)-HeaderSize)
		copy(f.Payload, data[HeaderSize:])
	}
	return f, nil
}
