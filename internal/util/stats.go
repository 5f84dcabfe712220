package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide media/signaling counter.
var Stats = &stats{}

type stats struct {
	FramesSent      atomic.Int64 // samples written to local tracks
	FramesRecv      atomic.Int64 // frames rendered from remote tracks
	FramesLost      atomic.Int64 // remote frames skipped by the reorder window
	BytesSent       atomic.Int64 // sample bytes written to local tracks
	BytesRecv       atomic.Int64 // RTP payload bytes read from remote tracks
	CandidatesSent  atomic.Int64 // local ICE candidates forwarded to the counterpart
	CandidatesAdded atomic.Int64 // remote ICE candidates applied
	CandidateErrors atomic.Int64 // remote ICE candidates rejected
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddLost(n int) { s.FramesLost.Add(int64(n)) }

// Reset zeroes all counters. Used between calls and by tests.
func (s *stats) Reset() {
	for _, c := range []*atomic.Int64{
		&s.FramesSent, &s.FramesRecv, &s.FramesLost, &s.BytesSent, &s.BytesRecv,
		&s.CandidatesSent, &s.CandidatesAdded, &s.CandidateErrors,
	} {
		c.Store(0)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs media statistics
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevFS, prevFR, prevBS, prevBR int64
		for {
			select {
			case <-ticker.C:
				fs := Stats.FramesSent.Load()
				fr := Stats.FramesRecv.Load()
				bs := Stats.BytesSent.Load()
				br := Stats.BytesRecv.Load()

				pterm.DefaultLogger.Info(formatStats(
					float64(fs-prevFS)/secs,
					float64(fr-prevFR)/secs,
					float64(bs-prevBS)/secs,
					float64(br-prevBR)/secs,
					Stats.FramesLost.Load(),
				))

				prevFS, prevFR, prevBS, prevBR = fs, fr, bs, br

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current rates for display in the logger.
func formatStats(outFPS, inFPS, outBPS, inBPS float64, lost int64) string {
	return fmt.Sprintf("Out: %5.1f fps %s/s | In: %5.1f fps %s/s | Lost: %d",
		outFPS, formatBytes(outBPS),
		inFPS, formatBytes(inBPS),
		lost,
	)
}
