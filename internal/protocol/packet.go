// Package protocol defines the header carried inside every synthetic media
// sample, so the receiving side can count, order and time frames.
package protocol

import "time"

// Frame kind constants.
const (
	KindVideo uint8 = 0x01
	KindAudio uint8 = 0x02
)

// HeaderSize is the fixed header size: Kind(1) + SeqNum(4) + CapturedAt(8).
const HeaderSize = 13

// Frame represents one captured media sample.
type Frame struct {
	Kind       uint8     // KindVideo or KindAudio
	SeqNum     uint32    // per-track sequence number, starting at 1
	CapturedAt time.Time // capture timestamp (nanosecond precision)
	Payload    []byte    // synthetic picture / audio data
}

// Latency returns how long ago the frame was captured, relative to now.
func (f *Frame) Latency(now time.Time) time.Duration {
	return now.Sub(f.CapturedAt)
}
