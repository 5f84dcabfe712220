package protocol

import (
	"bytes"
	"testing"
	"time"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse operations
// for both frame kinds with various payload sizes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	captured := time.Unix(1700000000, 123456789)

	testCases := []struct {
		name  string
		frame *Frame
	}{
		{
			name:  "video with small payload",
			frame: &Frame{Kind: KindVideo, SeqNum: 1, CapturedAt: captured, Payload: []byte("frame")},
		},
		{
			name:  "audio with no payload",
			frame: &Frame{Kind: KindAudio, SeqNum: 42, CapturedAt: captured},
		},
		{
			name:  "video with 1 KB payload",
			frame: &Frame{Kind: KindVideo, SeqNum: 0xFFFFFFFF, CapturedAt: captured, Payload: make([]byte, 1024)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tc.frame))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded.Kind != tc.frame.Kind {
				t.Errorf("Kind mismatch: got %d, want %d", decoded.Kind, tc.frame.Kind)
			}
			if decoded.SeqNum != tc.frame.SeqNum {
				t.Errorf("SeqNum mismatch: got %d, want %d", decoded.SeqNum, tc.frame.SeqNum)
			}
			if !decoded.CapturedAt.Equal(tc.frame.CapturedAt) {
				t.Errorf("CapturedAt mismatch: got %v, want %v", decoded.CapturedAt, tc.frame.CapturedAt)
			}
			if !bytes.Equal(decoded.Payload, tc.frame.Payload) {
				t.Errorf("Payload mismatch: got %d bytes, want %d bytes", len(decoded.Payload), len(tc.frame.Payload))
			}
		})
	}
}

// TestDecodeTooShort verifies that Decode returns an error when the input
// is shorter than HeaderSize.
func TestDecodeTooShort(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"1 byte", []byte{KindVideo}},
		{"one less than HeaderSize", make([]byte, HeaderSize-1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.data); err == nil {
				t.Fatal("Expected error for short frame, got nil")
			}
		})
	}
}

// TestDecodeUnknownKind verifies that random bytes with a bad kind byte are rejected.
func TestDecodeUnknownKind(t *testing.T) {
	data := make([]byte, HeaderSize)
	data[0] = 0x7F
	if _, err := Decode(data); err == nil {
		t.Fatal("Expected error for unknown kind, got nil")
	}
}

func TestFrameLatency(t *testing.T) {
	now := time.Now()
	f := &Frame{CapturedAt: now.Add(-40 * time.Millisecond)}
	if got := f.Latency(now); got != 40*time.Millisecond {
		t.Errorf("Latency: got %v, want 40ms", got)
	}
}
